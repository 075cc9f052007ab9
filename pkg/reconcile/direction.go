package reconcile

import (
	"context"
	"fmt"
	"strings"
)

// Direction is the operator's choice of which side wins.
type Direction string

// Directions.
const (
	SourceToStore Direction = "SourceToStore"
	StoreToSource Direction = "StoreToSource"
	Both          Direction = "Both"
	Cancel        Direction = "Cancel"
)

// String returns the direction name.
func (d Direction) String() string {
	return string(d)
}

// writesStore reports whether the direction merges the drawing into the store.
func (d Direction) writesStore() bool {
	return d == SourceToStore || d == Both
}

// writesSource reports whether the direction writes store values onto the drawing.
func (d Direction) writesSource() bool {
	return d == StoreToSource || d == Both
}

// ParseDirection parses a direction name, ignoring case, hyphens and
// underscores. "push" and "pull" are accepted as aliases.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)) {
	case "sourcetostore", "drawingtostore", "tostore", "push":
		return SourceToStore, nil
	case "storetosource", "storetodrawing", "tosource", "pull":
		return StoreToSource, nil
	case "both":
		return Both, nil
	case "cancel", "none", "":
		return Cancel, nil
	default:
		return Cancel, fmt.Errorf("unknown direction %q: must be source-to-store, store-to-source, both or cancel", s)
	}
}

// Chooser selects a direction after seeing the diff. It is where the
// operator is asked.
type Chooser interface {
	Choose(ctx context.Context, plan *Plan) (Direction, error)
}

// ChooserFunc adapts a function to Chooser.
type ChooserFunc func(ctx context.Context, plan *Plan) (Direction, error)

// Choose implements Chooser.
func (f ChooserFunc) Choose(ctx context.Context, plan *Plan) (Direction, error) {
	return f(ctx, plan)
}

// Fixed returns a Chooser that always picks d.
func Fixed(d Direction) Chooser {
	return ChooserFunc(func(context.Context, *Plan) (Direction, error) {
		return d, nil
	})
}
