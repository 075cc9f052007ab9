package reconcile

import (
	"context"
	"fmt"

	"github.com/agentstation/tagsync/pkg/drawing"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/tags"
)

// DuplicatePolicy says what TagOne does when the tag is already in use.
type DuplicatePolicy string

// Duplicate policies.
const (
	DuplicateFail DuplicatePolicy = "fail"
	DuplicateLink DuplicatePolicy = "link"
)

// TagRequest tags a single drawing object.
type TagRequest struct {
	Handle string
	// Tag is used as given when set, otherwise one is generated.
	Tag string
	// EquipmentType overrides the classifier when set.
	EquipmentType string
	// Area overrides the object's area attribute for tag generation.
	Area string
	// Confirmed marks the type as operator-confirmed.
	Confirmed     bool
	OnDuplicate   DuplicatePolicy
	UpstreamTag   string
	DownstreamTag string
}

// TagResult is the outcome of TagOne.
type TagResult struct {
	Record equipment.Record `json:"record" yaml:"record"`
	// Linked is set when the object was attached to an existing record.
	Linked  bool  `json:"linked" yaml:"linked"`
	Warning error `json:"-" yaml:"-"`
}

// TagOne assigns a tag to one drawing object, stores the record and stamps
// the object's marker. The marker is written after the store commit; a
// failed marker write is returned as TagResult.Warning.
func (e *Engine) TagOne(ctx context.Context, projectID string, host drawing.Host, req TagRequest) (*TagResult, error) {
	project, err := e.store.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}

	observations, _, err := e.extractor.Extract(ctx, host)
	if err != nil {
		return nil, err
	}
	var obs *equipment.Observation
	for i := range observations {
		if observations[i].SourceHandle == req.Handle {
			obs = &observations[i]
			break
		}
	}
	if obs == nil {
		return nil, errors.NewNotFoundError("equipment object", req.Handle)
	}

	equipmentType := req.EquipmentType
	if equipmentType == "" {
		equipmentType = e.extractor.TypeHint(*obs)
	}
	if equipmentType == "" {
		equipmentType, _ = e.classifier.Classify(obs.BlockIdentifier)
	}

	area := req.Area
	if area == "" {
		_, area = e.extractor.FieldValue(*obs, equipment.FieldArea)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, errors.WrapTransaction(project.ID, errors.StageTag, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag := req.Tag
	if tag != "" {
		if err := tags.ValidateErr(tag, project.TagMode); err != nil {
			return nil, err
		}
	} else {
		tag, err = e.generator.Generate(ctx, tx, project, equipmentType, area)
		if err != nil {
			return nil, errors.WrapTransaction(project.ID, errors.StageTag, err)
		}
	}

	records, err := tx.FindByProject(ctx, project.ID)
	if err != nil {
		return nil, errors.WrapTransaction(project.ID, errors.StageTag, err)
	}

	now := e.now().UTC()
	result := &TagResult{}

	if existing := tags.FindTag(records, tag); existing != nil {
		if req.OnDuplicate != DuplicateLink {
			return nil, errors.NewDuplicateTagError(project.ID, tag, existing.ID, errors.StageTag)
		}
		rec := *existing
		rec.SourceDrawingID = equipment.Ptr(host.Name())
		rec.SourceBlockIdentifier = equipment.Ptr(obs.BlockIdentifier)
		rec.SourceHandle = equipment.Ptr(obs.SourceHandle)
		rec.ModifiedAt = now
		if err := tx.Update(ctx, &rec); err != nil {
			return nil, errors.WrapTransaction(project.ID, errors.StageApply, err)
		}
		result.Record = rec
		result.Linked = true
	} else {
		rec := e.newRecord(project, host, *obs, tag, equipmentType, now)
		if area != "" {
			rec.Area = area
		}
		if err := linkNeighbors(&rec, records, req); err != nil {
			return nil, err
		}
		if err := tx.Add(ctx, &rec); err != nil {
			return nil, errors.WrapTransaction(project.ID, errors.StageApply, err)
		}
		result.Record = rec
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.WrapTransaction(project.ID, errors.StageCommit, err)
	}

	// learned only once the object is tagged, so rejected attempts do not count
	if _, err := e.classifier.Learn(obs.BlockIdentifier, equipmentType, req.Confirmed); err != nil {
		e.logger.Debug().Err(err).Str("block", obs.BlockIdentifier).Msg("Classification not learned")
	}
	if err := e.classifier.Save(); err != nil {
		e.logger.Debug().Err(err).Msg("Learned mappings not saved")
	}

	marker := equipment.Marker{Name: e.markerName, Timestamp: now, Tag: result.Record.TagNumber}
	if err := host.WriteMarker(ctx, obs.SourceHandle, marker); err != nil {
		result.Warning = errors.NewPartialApplyWarning(obs.SourceHandle, result.Record.TagNumber, "marker", err)
		e.logger.Warn().Err(err).Str("handle", obs.SourceHandle).Msg("Tag stored but marker not written")
	}

	e.logger.Info().
		Str("project_id", project.ID).
		Str("tag", result.Record.TagNumber).
		Str("handle", obs.SourceHandle).
		Bool("linked", result.Linked).
		Msg("Object tagged")
	return result, nil
}

// linkNeighbors resolves the requested upstream and downstream tags to
// record IDs.
func linkNeighbors(rec *equipment.Record, records []equipment.Record, req TagRequest) error {
	resolve := func(tag string) (*string, error) {
		if tag == "" {
			return nil, nil
		}
		found := tags.FindTag(records, tag)
		if found == nil {
			return nil, errors.NewNotFoundError("equipment", tag)
		}
		return equipment.Ptr(found.ID), nil
	}

	var err error
	if rec.UpstreamID, err = resolve(req.UpstreamTag); err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	if rec.DownstreamID, err = resolve(req.DownstreamTag); err != nil {
		return fmt.Errorf("downstream: %w", err)
	}
	return nil
}
