package reconcile

import (
	"context"

	"github.com/agentstation/tagsync/pkg/drawing"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/extract"
)

// PreviewItem is one extracted object with its resolved type.
type PreviewItem struct {
	Handle        string            `json:"handle" yaml:"handle"`
	Block         string            `json:"block" yaml:"block"`
	Layer         string            `json:"layer,omitempty" yaml:"layer,omitempty"`
	Tag           string            `json:"tag,omitempty" yaml:"tag,omitempty"`
	Tagged        bool              `json:"tagged" yaml:"tagged"`
	EquipmentType string            `json:"equipment_type" yaml:"equipment_type"`
	Confidence    float64           `json:"confidence" yaml:"confidence"`
	Attributes    map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Preview extracts and classifies the drawing without touching the store,
// the drawing or the learned mappings.
func (e *Engine) Preview(ctx context.Context, host drawing.Host) ([]PreviewItem, extract.Stats, error) {
	observations, stats, err := e.extractor.Extract(ctx, host)
	if err != nil {
		return nil, stats, err
	}

	items := make([]PreviewItem, 0, len(observations))
	for _, obs := range observations {
		items = append(items, e.previewItem(obs))
	}
	return items, stats, nil
}

func (e *Engine) previewItem(obs equipment.Observation) PreviewItem {
	item := PreviewItem{
		Handle:     obs.SourceHandle,
		Block:      obs.BlockIdentifier,
		Layer:      obs.Layer,
		Tag:        obs.ExplicitTag(),
		Tagged:     obs.IsTagged(),
		Attributes: obs.Attributes,
	}
	if hint := e.extractor.TypeHint(obs); hint != "" {
		item.EquipmentType = hint
		item.Confidence = 1
		return item
	}
	item.EquipmentType, item.Confidence = e.classifier.Classify(obs.BlockIdentifier)
	return item
}
