// Package reconcile diffs the equipment in a drawing against the system of
// record and applies the operator's chosen direction. A pass runs four
// stages: load, diff, direction selection and apply. All store mutations of
// a pass share one transaction; drawing writes are best-effort and are not
// reverted when the commit fails.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/tagsync/pkg/classify"
	"github.com/agentstation/tagsync/pkg/constants"
	"github.com/agentstation/tagsync/pkg/drawing"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/extract"
	"github.com/agentstation/tagsync/pkg/logging"
	"github.com/agentstation/tagsync/pkg/store"
	"github.com/agentstation/tagsync/pkg/tags"
)

// Extractor reads observations from a drawing.
type Extractor interface {
	FieldReader
	Extract(ctx context.Context, host drawing.Host) ([]equipment.Observation, extract.Stats, error)
	TypeHint(obs equipment.Observation) string
}

// Classifier resolves and learns equipment types.
type Classifier interface {
	Classify(blockIdentifier string) (string, float64)
	Learn(blockIdentifier, equipmentType string, confirmed bool) (equipment.LearnedMapping, error)
	Save() error
}

// Recorder receives pass outcomes, typically for metrics.
type Recorder interface {
	ObservePass(result *Result)
	ObserveFailure(stage errors.Stage)
}

type nopRecorder struct{}

func (nopRecorder) ObservePass(*Result)         {}
func (nopRecorder) ObserveFailure(errors.Stage) {}

// Engine runs reconciliation passes against one store. Two passes over the
// same project must not run concurrently; the engine takes no lock.
type Engine struct {
	store      store.Store
	extractor  Extractor
	classifier Classifier
	generator  *tags.Generator
	recorder   Recorder
	logger     *zerolog.Logger
	now        func() time.Time
	markerName string
	writeBack  bool
}

// Option configures an Engine.
type Option func(*Engine) error

// WithExtractor sets the extractor.
func WithExtractor(x Extractor) Option {
	return func(e *Engine) error {
		e.extractor = x
		return nil
	}
}

// WithClassifier sets the classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) error {
		e.classifier = c
		return nil
	}
}

// WithGenerator sets the tag generator.
func WithGenerator(g *tags.Generator) Option {
	return func(e *Engine) error {
		e.generator = g
		return nil
	}
}

// WithRecorder sets the pass recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) error {
		e.recorder = r
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		e.now = now
		return nil
	}
}

// WithMarkerName sets the marker name stamped on drawing objects.
func WithMarkerName(name string) Option {
	return func(e *Engine) error {
		if strings.TrimSpace(name) == "" {
			return errors.NewValidationError("marker_name", name, "marker name is empty")
		}
		e.markerName = name
		return nil
	}
}

// WithMarkerWriteBack controls whether SourceToStore stamps the marker on
// objects it assigned a tag to. Enabled by default; without it untagged
// objects are matched by block name again on the next pass.
func WithMarkerWriteBack(enabled bool) Option {
	return func(e *Engine) error {
		e.writeBack = enabled
		return nil
	}
}

// New creates an Engine over st.
func New(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, errors.NewValidationError("store", nil, "store is required")
	}
	e := &Engine{
		store:      st,
		recorder:   nopRecorder{},
		logger:     logging.Default(),
		now:        time.Now,
		markerName: constants.MarkerName,
		writeBack:  true,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.generator == nil {
		g, err := tags.NewGenerator(nil)
		if err != nil {
			return nil, err
		}
		e.generator = g
	}
	if e.extractor == nil {
		e.extractor = extract.New(extract.DefaultConfig(), extract.WithLogger(e.logger))
	}
	if e.classifier == nil {
		c, err := classify.New(classify.WithLogger(e.logger))
		if err != nil {
			return nil, err
		}
		e.classifier = c
	}
	return e, nil
}

// Load runs the load and diff stages.
func (e *Engine) Load(ctx context.Context, projectID string, host drawing.Host) (*Plan, error) {
	project, err := e.store.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}

	observations, stats, err := e.extractor.Extract(ctx, host)
	if err != nil {
		return nil, err
	}

	records, err := e.store.FindByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("load records for %s: %w", project.Name, err)
	}

	plan := Diff(host.Name(), records, observations, e.extractor)
	plan.Project = project
	plan.Stats = stats

	e.passLogger(project, host).Debug().
		Int("new", len(plan.NewInSource)).
		Int("matched", len(plan.MatchedBoth)).
		Int("missing", len(plan.MissingInSource)).
		Int("collisions", len(plan.Collisions)).
		Msg("Diff computed")
	return plan, nil
}

// Sync runs a full pass: load, diff, ask chooser for a direction, apply.
// Choosing Cancel returns ErrCanceled with no side effects.
func (e *Engine) Sync(ctx context.Context, projectID string, host drawing.Host, chooser Chooser) (*Result, error) {
	started := e.now()

	plan, err := e.Load(ctx, projectID, host)
	if err != nil {
		e.recorder.ObserveFailure(stageOf(err, errors.StageLoad))
		return nil, err
	}

	dir, err := chooser.Choose(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("choose direction: %w", err)
	}
	if dir == Cancel {
		return nil, fmt.Errorf("sync of %s canceled: %w", plan.Project.Name, errors.ErrCanceled)
	}

	return e.apply(ctx, plan, host, dir, started, false)
}

// Apply applies a direction to a previously loaded plan.
func (e *Engine) Apply(ctx context.Context, plan *Plan, host drawing.Host, dir Direction) (*Result, error) {
	if dir == Cancel {
		return nil, fmt.Errorf("sync of %s canceled: %w", plan.Project.Name, errors.ErrCanceled)
	}
	return e.apply(ctx, plan, host, dir, e.now(), false)
}

// ExtractAndStore adds every drawing object not yet in the store. Existing
// records are left untouched.
func (e *Engine) ExtractAndStore(ctx context.Context, projectID string, host drawing.Host) (*Result, error) {
	started := e.now()
	plan, err := e.Load(ctx, projectID, host)
	if err != nil {
		e.recorder.ObserveFailure(stageOf(err, errors.StageLoad))
		return nil, err
	}
	return e.apply(ctx, plan, host, SourceToStore, started, true)
}

// pair is a store record together with the drawing object it came from.
type pair struct {
	rec equipment.Record
	obs equipment.Observation
}

func (e *Engine) apply(ctx context.Context, plan *Plan, host drawing.Host, dir Direction, started time.Time, addsOnly bool) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	project := plan.Project
	logger := e.passLogger(project, host)
	now := e.now().UTC()

	res := &Result{
		RunID:           equipment.NewID(),
		ProjectID:       project.ID,
		DrawingID:       host.Name(),
		Direction:       dir,
		MissingInSource: plan.MissingTags(),
		Collisions:      plan.Collisions,
		StartedAt:       started.UTC(),
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		e.recorder.ObserveFailure(errors.StageApply)
		return nil, errors.WrapTransaction(project.ID, errors.StageApply, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	matched := make([]pair, 0, len(plan.MatchedBoth))
	for _, key := range plan.MatchedBoth {
		matched = append(matched, pair{rec: plan.records[key], obs: plan.observations[key]})
	}

	var added []pair
	if dir.writesStore() {
		added, err = e.addNew(ctx, tx, plan, host, res, now)
		if err != nil {
			e.recorder.ObserveFailure(stageOf(err, errors.StageApply))
			return nil, err
		}
		if !addsOnly {
			if err := e.mergeMatched(ctx, tx, matched, res, now); err != nil {
				e.recorder.ObserveFailure(stageOf(err, errors.StageApply))
				return nil, err
			}
		}
	}

	stamped := map[string]bool{}
	if dir.writesSource() {
		e.writeSource(ctx, host, append(matched, added...), res, now, stamped)
	}
	if dir.writesStore() && e.writeBack {
		e.writeBackMarkers(ctx, host, append(added, unmarked(matched)...), res, now, stamped)
	}

	res.FinishedAt = e.now().UTC()
	if err := tx.RecordRun(ctx, res.RunSummary()); err != nil {
		e.recorder.ObserveFailure(errors.StageCommit)
		return nil, errors.WrapTransaction(project.ID, errors.StageCommit, err)
	}
	if err := tx.Commit(ctx); err != nil {
		e.recorder.ObserveFailure(errors.StageCommit)
		logger.Error().Err(err).Int("drawing_writes", countDrawingChanges(res)).
			Msg("Store commit failed; drawing writes already applied are kept")
		return res, errors.WrapTransaction(project.ID, errors.StageCommit, err)
	}

	if err := e.classifier.Save(); err != nil {
		logger.Debug().Err(err).Msg("Learned mappings not saved")
	}

	e.recorder.ObservePass(res)
	logger.Info().
		Str("direction", dir.String()).
		Int("added", res.Added).
		Int("updated", res.Updated).
		Int("updated_in_source", res.UpdatedInSource).
		Int("missing", len(res.MissingInSource)).
		Int("rejected", len(res.Rejected)).
		Int("warnings", len(res.Warnings)).
		Msg("Reconciliation pass committed")
	return res, nil
}

// addNew inserts a record for every new drawing object.
func (e *Engine) addNew(ctx context.Context, tx store.Tx, plan *Plan, host drawing.Host, res *Result, now time.Time) ([]pair, error) {
	project := plan.Project
	var added []pair

	for _, key := range plan.NewInSource {
		obs := plan.observations[key]
		equipmentType := e.resolveType(obs)

		tag := obs.ExplicitTag()
		if tag != "" {
			if v := tags.Validate(tag, project.TagMode); !v.Valid {
				res.Rejected = append(res.Rejected, Rejection{
					Handle:     obs.SourceHandle,
					Block:      obs.BlockIdentifier,
					Tag:        tag,
					Reason:     v.Reason,
					Suggestion: v.Suggestion,
				})
				continue
			}
		} else {
			_, area := e.extractor.FieldValue(obs, equipment.FieldArea)
			generated, err := e.generator.Generate(ctx, tx, project, equipmentType, area)
			var invalid *errors.TagValidationError
			if errors.As(err, &invalid) {
				res.Rejected = append(res.Rejected, Rejection{
					Handle:     obs.SourceHandle,
					Block:      obs.BlockIdentifier,
					Tag:        invalid.Tag,
					Reason:     invalid.Reason,
					Suggestion: invalid.Suggestion,
				})
				continue
			}
			if err != nil {
				return nil, errors.WrapTransaction(project.ID, errors.StageTag, err)
			}
			tag = generated
		}

		rec := e.newRecord(project, host, obs, tag, equipmentType, now)
		if err := tx.Add(ctx, &rec); err != nil {
			if errors.IsAlreadyExists(err) {
				res.Rejected = append(res.Rejected, Rejection{
					Handle: obs.SourceHandle,
					Block:  obs.BlockIdentifier,
					Tag:    tag,
					Reason: err.Error(),
				})
				continue
			}
			return nil, errors.WrapTransaction(project.ID, errors.StageApply, err)
		}

		res.Added++
		res.Records = append(res.Records, rec)
		res.Changes = append(res.Changes, Change{
			Type:     ChangeAdd,
			Target:   TargetStore,
			Tag:      rec.TagNumber,
			Handle:   obs.SourceHandle,
			NewValue: rec.EquipmentType,
		})
		added = append(added, pair{rec: rec, obs: obs})
	}
	return added, nil
}

// resolveType returns the explicit type attribute, else the classifier's
// answer, and records one unconfirmed use of the block.
func (e *Engine) resolveType(obs equipment.Observation) string {
	equipmentType := e.extractor.TypeHint(obs)
	if equipmentType == "" {
		equipmentType, _ = e.classifier.Classify(obs.BlockIdentifier)
	}
	if _, err := e.classifier.Learn(obs.BlockIdentifier, equipmentType, false); err != nil {
		e.logger.Debug().Err(err).Str("block", obs.BlockIdentifier).Msg("Classification not learned")
	}
	return equipmentType
}

func (e *Engine) newRecord(project equipment.Project, host drawing.Host, obs equipment.Observation, tag, equipmentType string, now time.Time) equipment.Record {
	rec := equipment.Record{
		ID:                    equipment.NewID(),
		ProjectID:             project.ID,
		TagNumber:             tag,
		EquipmentType:         equipmentType,
		Status:                equipment.StatusNew,
		SourceDrawingID:       equipment.Ptr(host.Name()),
		SourceBlockIdentifier: equipment.Ptr(obs.BlockIdentifier),
		SourceHandle:          equipment.Ptr(obs.SourceHandle),
		CreatedAt:             now,
		ModifiedAt:            now,
		IsActive:              true,
	}
	for _, f := range equipment.MergeFields {
		_, v := e.extractor.FieldValue(obs, f)
		rec.SetField(f, v)
	}
	return rec
}

// mergeMatched applies the non-destructive source-to-store field merge.
func (e *Engine) mergeMatched(ctx context.Context, tx store.Tx, matched []pair, res *Result, now time.Time) error {
	for i := range matched {
		p := &matched[i]
		changes := storeChanges(p.rec, p.obs, e.extractor)
		if len(changes) == 0 {
			continue
		}

		rec := p.rec
		applyStoreChanges(&rec, changes)
		rec.Status = equipment.StatusExisting
		rec.ModifiedAt = now
		if rec.SourceHandle == nil {
			rec.SourceHandle = equipment.Ptr(p.obs.SourceHandle)
		}
		if err := tx.Update(ctx, &rec); err != nil {
			return errors.WrapTransaction(rec.ProjectID, errors.StageApply, err)
		}

		p.rec = rec
		res.Updated++
		res.Changes = append(res.Changes, changes...)
	}
	return nil
}

// writeSource writes store values onto matched drawing objects and stamps
// their marker. A failed write is recorded as a warning and the object's
// remaining writes are skipped.
func (e *Engine) writeSource(ctx context.Context, host drawing.Host, pairs []pair, res *Result, now time.Time, stamped map[string]bool) {
	for _, p := range pairs {
		handle := p.obs.SourceHandle
		writes := sourceWrites(p.rec, p.obs, e.extractor)
		if len(writes) == 0 && p.obs.IsTagged() && strings.EqualFold(p.obs.Marker.Tag, p.rec.TagNumber) {
			continue
		}
		written := 0
		failed := false

		for _, w := range writes {
			if err := host.WriteAttribute(ctx, handle, w.Attribute, w.NewValue); err != nil {
				res.Warnings = append(res.Warnings, errors.NewPartialApplyWarning(handle, p.rec.TagNumber, w.Field, err))
				failed = true
				break
			}
			written++
			res.Changes = append(res.Changes, Change{
				Type:     ChangeUpdate,
				Target:   TargetDrawing,
				Tag:      p.rec.TagNumber,
				Handle:   handle,
				Field:    w.Attribute,
				OldValue: w.OldValue,
				NewValue: w.NewValue,
			})
		}
		if written > 0 {
			res.UpdatedInSource++
		}
		if failed {
			continue
		}

		if err := e.stamp(ctx, host, p, now, res); err == nil {
			stamped[handle] = true
		}
	}
}

// writeBackMarkers stamps the marker on newly added objects so that the
// next pass matches them by tag.
func (e *Engine) writeBackMarkers(ctx context.Context, host drawing.Host, added []pair, res *Result, now time.Time, stamped map[string]bool) {
	for _, p := range added {
		if stamped[p.obs.SourceHandle] {
			continue
		}
		if p.obs.Marker != nil && strings.EqualFold(p.obs.Marker.Tag, p.rec.TagNumber) {
			continue
		}
		if err := e.stamp(ctx, host, p, now, res); err == nil {
			stamped[p.obs.SourceHandle] = true
		}
	}
}

// unmarked returns the matched pairs whose object carries no tag of its
// own, matched by source handle only.
func unmarked(matched []pair) []pair {
	var out []pair
	for _, p := range matched {
		if p.obs.ExplicitTag() == "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) stamp(ctx context.Context, host drawing.Host, p pair, now time.Time, res *Result) error {
	marker := equipment.Marker{Name: e.markerName, Timestamp: now, Tag: p.rec.TagNumber}
	if err := host.WriteMarker(ctx, p.obs.SourceHandle, marker); err != nil {
		res.Warnings = append(res.Warnings, errors.NewPartialApplyWarning(p.obs.SourceHandle, p.rec.TagNumber, "marker", err))
		return err
	}
	res.Changes = append(res.Changes, Change{
		Type:     ChangeMarker,
		Target:   TargetDrawing,
		Tag:      p.rec.TagNumber,
		Handle:   p.obs.SourceHandle,
		NewValue: now.Format(time.RFC3339),
	})
	return nil
}

func (e *Engine) passLogger(project equipment.Project, host drawing.Host) *zerolog.Logger {
	l := e.logger.With().
		Str("project_id", project.ID).
		Str("drawing", host.Name()).
		Logger()
	return &l
}

func countDrawingChanges(res *Result) int {
	n := 0
	for _, c := range res.Changes {
		if c.Target == TargetDrawing {
			n++
		}
	}
	return n
}

// stageOf returns the stage carried by a typed error, or fallback.
func stageOf(err error, fallback errors.Stage) errors.Stage {
	var (
		dae *errors.DrawingAccessError
		txe *errors.StoreTransactionError
		tve *errors.TagValidationError
		dup *errors.DuplicateTagError
	)
	switch {
	case errors.As(err, &dae):
		return dae.Stage
	case errors.As(err, &txe):
		return txe.Stage
	case errors.As(err, &tve):
		return tve.Stage
	case errors.As(err, &dup):
		return dup.Stage
	default:
		return fallback
	}
}
