package reconcile_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/tagsync/pkg/classify"
	"github.com/agentstation/tagsync/pkg/constants"
	"github.com/agentstation/tagsync/pkg/drawing"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/extract"
	"github.com/agentstation/tagsync/pkg/logging"
	"github.com/agentstation/tagsync/pkg/reconcile"
	"github.com/agentstation/tagsync/pkg/store/memory"
	"github.com/agentstation/tagsync/pkg/store/storetest"
)

var fixed = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

func clock() time.Time { return fixed }

type fixture struct {
	store      *memory.Store
	classifier *classify.Classifier
	engine     *reconcile.Engine
	project    equipment.Project
	host       *drawing.MemoryHost
	recorder   *fakeRecorder
}

type fakeRecorder struct {
	passes   []*reconcile.Result
	failures []errors.Stage
}

func (r *fakeRecorder) ObservePass(res *reconcile.Result) { r.passes = append(r.passes, res) }
func (r *fakeRecorder) ObserveFailure(stage errors.Stage) { r.failures = append(r.failures, stage) }

func newFixture(t *testing.T, mode equipment.TagMode, objects ...drawing.Object) *fixture {
	t.Helper()
	nop := logging.NewNopLogger()

	st := memory.New()
	c, err := classify.New(classify.WithLogger(nop), classify.WithClock(clock))
	require.NoError(t, err)

	rec := &fakeRecorder{}
	eng, err := reconcile.New(st,
		reconcile.WithClassifier(c),
		reconcile.WithExtractor(extract.New(extract.DefaultConfig(), extract.WithLogger(nop), extract.WithClock(clock))),
		reconcile.WithLogger(nop),
		reconcile.WithClock(clock),
		reconcile.WithRecorder(rec),
	)
	require.NoError(t, err)

	return &fixture{
		store:      st,
		classifier: c,
		engine:     eng,
		project:    storetest.NewProject(t, st, "P", mode),
		host:       drawing.NewMemoryHost("unit-100.dwg", objects...),
		recorder:   rec,
	}
}

func (f *fixture) seed(t *testing.T, records ...*equipment.Record) {
	t.Helper()
	storetest.Seed(t, f.store, records...)
}

func (f *fixture) records(t *testing.T) []equipment.Record {
	t.Helper()
	recs, err := f.store.FindByProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	return recs
}

func (f *fixture) sync(t *testing.T, d reconcile.Direction) *reconcile.Result {
	t.Helper()
	res, err := f.engine.Sync(context.Background(), f.project.ID, f.host, reconcile.Fixed(d))
	require.NoError(t, err)
	return res
}

func marker(tag string) map[string]string {
	return drawing.EncodeMarker(equipment.Marker{
		Name:      constants.MarkerName,
		Timestamp: fixed.Add(-time.Hour),
		Tag:       tag,
	})
}

func markerTag(t *testing.T, h *drawing.MemoryHost, handle string) string {
	t.Helper()
	o, ok := h.Object(handle)
	require.True(t, ok)
	return o.Marker[drawing.MarkerKeyTag]
}

func TestSyncScenario(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "A", BlockName: "PMP-TAG-001", Layer: "EQUIP", Marker: marker("PMP-001")},
		drawing.Object{Handle: "B", BlockName: "PMP-NEW"},
	)
	f.seed(t, storetest.NewRecord(f.project.ID, "PMP-001"))

	res := f.sync(t, reconcile.SourceToStore)

	assert.Equal(t, 1, res.Added)
	assert.Contains(t, []int{0, 1}, res.Updated)
	assert.Empty(t, res.MissingInSource)
	assert.Empty(t, res.Warnings)

	recs := f.records(t)
	require.Len(t, recs, 2)
	assert.Equal(t, "PMP-001", recs[0].TagNumber)
	assert.Equal(t, "EQUIP", recs[0].Layer)
	assert.Equal(t, "PMP-002", recs[1].TagNumber)
	assert.Equal(t, "Pump", recs[1].EquipmentType)
	assert.Equal(t, equipment.StatusNew, recs[1].Status)
	assert.Equal(t, "unit-100.dwg", equipment.Deref(recs[1].SourceDrawingID))
	assert.Equal(t, "B", equipment.Deref(recs[1].SourceHandle))

	assert.Equal(t, "PMP-002", markerTag(t, f.host, "B"))

	runs, err := f.store.Runs(context.Background(), f.project.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Added)
	assert.Equal(t, "SourceToStore", runs[0].Direction)

	require.Len(t, f.recorder.passes, 1)

	learned := f.classifier.Mappings()
	require.Len(t, learned, 1)
	assert.Equal(t, "PMP-NEW", learned[0].BlockIdentifier)
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "A", BlockName: "PMP-TAG-001", Layer: "EQUIP", Marker: marker("PMP-001")},
		drawing.Object{Handle: "B", BlockName: "PMP-NEW", Attributes: map[string]string{"DESC": "Feed pump"}},
	)
	f.seed(t, storetest.NewRecord(f.project.ID, "PMP-001"))

	f.sync(t, reconcile.SourceToStore)
	second := f.sync(t, reconcile.SourceToStore)

	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 0, second.Updated)
	assert.Len(t, f.records(t), 2)
}

func TestSyncWithoutWriteBackAddsOnce(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "B", BlockName: "PMP-NEW"},
	)
	eng, err := reconcile.New(f.store,
		reconcile.WithClassifier(f.classifier),
		reconcile.WithLogger(logging.NewNopLogger()),
		reconcile.WithClock(clock),
		reconcile.WithMarkerWriteBack(false),
	)
	require.NoError(t, err)

	for run, want := range []int{1, 0, 0} {
		res, err := eng.Sync(context.Background(), f.project.ID, f.host, reconcile.Fixed(reconcile.SourceToStore))
		require.NoError(t, err)
		assert.Equal(t, want, res.Added, "run %d", run+1)
	}

	assert.Len(t, f.records(t), 1)
	o, _ := f.host.Object("B")
	assert.Nil(t, o.Marker)
}

func TestSyncAfterFailedMarkerWriteAddsOnce(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "B", BlockName: "PMP-NEW"},
	)
	f.host.FailWrites["B"] = stderrors.New("object locked")

	first := f.sync(t, reconcile.SourceToStore)
	assert.Equal(t, 1, first.Added)
	assert.Len(t, first.Warnings, 1)

	second := f.sync(t, reconcile.SourceToStore)
	assert.Equal(t, 0, second.Added)

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Empty(t, markerTag(t, f.host, "B"))

	// Once the object is writable the marker is written on the next pass.
	delete(f.host.FailWrites, "B")
	third := f.sync(t, reconcile.SourceToStore)
	assert.Equal(t, 0, third.Added)
	assert.Empty(t, third.Warnings)
	assert.Equal(t, recs[0].TagNumber, markerTag(t, f.host, "B"))
	assert.Len(t, f.records(t), 1)
}

func TestSyncRejectsExhaustedSequence(t *testing.T) {
	f := newFixture(t, equipment.TagModeHierarchical,
		drawing.Object{Handle: "B", BlockName: "PMP-NEW"},
	)
	f.seed(t, storetest.NewRecord(f.project.ID, "PMP-99999"))

	res := f.sync(t, reconcile.SourceToStore)
	assert.Equal(t, 0, res.Added)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "B", res.Rejected[0].Handle)
	assert.Equal(t, "PMP-100000", res.Rejected[0].Tag)
	assert.Len(t, f.records(t), 1)
}

func TestSyncIsNonDestructive(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{
			Handle:     "A",
			BlockName:  "PMP-TAG-001",
			Marker:     marker("PMP-001"),
			Attributes: map[string]string{"DESCRIPTION": "", "MFR": "Flowserve"},
		},
	)
	rec := storetest.NewRecord(f.project.ID, "PMP-001")
	rec.Description = "Feed pump"
	rec.Manufacturer = "Acme"
	rec.Area = "100"
	f.seed(t, rec)

	res := f.sync(t, reconcile.SourceToStore)
	assert.Equal(t, 1, res.Updated)

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, "Feed pump", recs[0].Description)
	assert.Equal(t, "100", recs[0].Area)
	assert.Equal(t, "Flowserve", recs[0].Manufacturer)
	assert.Equal(t, equipment.StatusExisting, recs[0].Status)
	assert.Equal(t, fixed, recs[0].ModifiedAt)

	require.Len(t, res.Changes, 1)
	assert.Equal(t, reconcile.Change{
		Type:     reconcile.ChangeUpdate,
		Target:   reconcile.TargetStore,
		Tag:      "PMP-001",
		Handle:   "A",
		Field:    equipment.FieldManufacturer,
		OldValue: "Acme",
		NewValue: "Flowserve",
	}, res.Changes[0])
}

func TestSyncCancelHasNoSideEffects(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "B", BlockName: "PMP-NEW"},
	)

	res, err := f.engine.Sync(context.Background(), f.project.ID, f.host, reconcile.Fixed(reconcile.Cancel))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.IsCanceled(err))

	assert.Empty(t, f.records(t))
	runs, err := f.store.Runs(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Empty(t, runs)

	o, _ := f.host.Object("B")
	assert.Nil(t, o.Marker)
	assert.Empty(t, f.classifier.Mappings())
}

func TestSyncCommitFailure(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "B", BlockName: "PMP-NEW"},
	)
	f.seed(t, storetest.NewRecord(f.project.ID, "PMP-001"))
	f.store.CommitErr = stderrors.New("disk full")

	res, err := f.engine.Sync(context.Background(), f.project.ID, f.host, reconcile.Fixed(reconcile.SourceToStore))
	require.Error(t, err)
	assert.True(t, errors.IsTransaction(err))

	var txErr *errors.StoreTransactionError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, errors.StageCommit, txErr.Stage)
	assert.Equal(t, f.project.ID, txErr.ProjectID)

	// The store batch is discarded; the drawing marker written before the
	// commit stays.
	assert.Len(t, f.records(t), 1)
	require.NotNil(t, res)
	assert.Equal(t, "PMP-002", markerTag(t, f.host, "B"))

	assert.Equal(t, []errors.Stage{errors.StageCommit}, f.recorder.failures)
	assert.Empty(t, f.recorder.passes)
}

func TestSyncStoreToSource(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "A", BlockName: "PMP-TAG-001", Marker: marker("PMP-001"), Attributes: map[string]string{"DESC": "old"}},
		drawing.Object{Handle: "B", BlockName: "PMP-NEW"},
	)
	rec := storetest.NewRecord(f.project.ID, "PMP-001")
	rec.Description = "Feed pump"
	rec.Area = "100"
	f.seed(t, rec)

	res := f.sync(t, reconcile.StoreToSource)

	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 1, res.UpdatedInSource)

	o, _ := f.host.Object("A")
	assert.Equal(t, "Feed pump", o.Attributes["DESC"])
	assert.Equal(t, "100", o.Attributes["AREA"])
	assert.Equal(t, fixed.Format(time.RFC3339Nano), o.Marker[drawing.MarkerKeyTimestamp])

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.ModifiedAt, recs[0].ModifiedAt)

	b, _ := f.host.Object("B")
	assert.Nil(t, b.Marker)
}

func TestSyncPartialApplyWarnings(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "A", BlockName: "PMP-TAG-001", Marker: marker("PMP-001")},
		drawing.Object{Handle: "C", BlockName: "PMP-TAG-003", Marker: marker("PMP-003")},
	)
	a := storetest.NewRecord(f.project.ID, "PMP-001")
	a.Description = "Feed pump"
	c := storetest.NewRecord(f.project.ID, "PMP-003")
	c.Description = "Reflux pump"
	f.seed(t, a, c)
	f.host.FailWrites["A"] = stderrors.New("object locked")

	res := f.sync(t, reconcile.StoreToSource)

	require.Len(t, res.Warnings, 1)
	assert.True(t, errors.Is(res.Warnings[0], errors.ErrPartialApply))
	var warn *errors.PartialApplyWarning
	require.True(t, errors.As(res.Warnings[0], &warn))
	assert.Equal(t, "A", warn.Handle)
	assert.Equal(t, equipment.FieldDescription, warn.Field)

	assert.Equal(t, 1, res.UpdatedInSource)
	o, _ := f.host.Object("C")
	assert.Equal(t, "Reflux pump", o.Attributes["DESCRIPTION"])

	runs, err := f.store.Runs(context.Background(), f.project.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Warnings)
}

func TestSyncBoth(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "A", BlockName: "PMP-TAG-001", Marker: marker("PMP-001"), Attributes: map[string]string{"MFR": "Acme"}},
		drawing.Object{Handle: "B", BlockName: "VALVE-GATE", Attributes: map[string]string{"AREA": "200"}},
	)
	rec := storetest.NewRecord(f.project.ID, "PMP-001")
	rec.Description = "Feed pump"
	f.seed(t, rec)

	res := f.sync(t, reconcile.Both)

	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.UpdatedInSource)

	recs := f.records(t)
	require.Len(t, recs, 2)
	assert.Equal(t, "200-VLV-001", recs[0].TagNumber)
	assert.Equal(t, "Valve", recs[0].EquipmentType)
	assert.Equal(t, "PMP-001", recs[1].TagNumber)
	assert.Equal(t, "Acme", recs[1].Manufacturer)
	assert.Equal(t, "Feed pump", recs[1].Description)

	a, _ := f.host.Object("A")
	assert.Equal(t, "Feed pump", a.Attributes["DESCRIPTION"])
	assert.Equal(t, "Acme", a.Attributes["MFR"])
	assert.Equal(t, "200-VLV-001", markerTag(t, f.host, "B"))
}

func TestSyncCoalescesUntaggedCollisions(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "B1", BlockName: "PMP-NEW"},
		drawing.Object{Handle: "B2", BlockName: "pmp-new"},
	)

	res := f.sync(t, reconcile.SourceToStore)

	assert.Equal(t, 1, res.Added)
	require.Len(t, res.Collisions, 1)
	assert.Equal(t, reconcile.Collision{Key: "PMP-NEW", Handles: []string{"B1", "B2"}}, res.Collisions[0])

	b2, _ := f.host.Object("B2")
	assert.Nil(t, b2.Marker)
}

func TestSyncRejectsInvalidExplicitTag(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "X", BlockName: "PMP-A", Attributes: map[string]string{"TAG": "PU"}},
		drawing.Object{Handle: "Y", BlockName: "PMP-B", Attributes: map[string]string{"TAG": "P-101"}},
	)

	res := f.sync(t, reconcile.SourceToStore)

	assert.Equal(t, 1, res.Added)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "X", res.Rejected[0].Handle)
	assert.Equal(t, "PU", res.Rejected[0].Tag)
	assert.Equal(t, "must be at least 3 characters", res.Rejected[0].Reason)

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, "P-101", recs[0].TagNumber)
	assert.Equal(t, "P-101", markerTag(t, f.host, "Y"))
}

func TestSyncHierarchicalGeneration(t *testing.T) {
	f := newFixture(t, equipment.TagModeHierarchical,
		drawing.Object{Handle: "1", BlockName: "VALVE-GATE", Attributes: map[string]string{"AREA": "200"}},
		drawing.Object{Handle: "2", BlockName: "MOTOR-AC"},
	)
	inactive := storetest.NewRecord(f.project.ID, "VLV-004")
	inactive.IsActive = false
	f.seed(t, inactive)

	res := f.sync(t, reconcile.SourceToStore)
	assert.Equal(t, 2, res.Added)

	recs := f.records(t)
	require.Len(t, recs, 2)
	assert.Equal(t, "MTR-001", recs[0].TagNumber)
	assert.Equal(t, "VLV-005", recs[1].TagNumber)
}

func TestSyncReportsMissingInSource(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom)
	f.seed(t, storetest.NewRecord(f.project.ID, "PMP-001"), storetest.NewRecord(f.project.ID, "TNK-001"))

	res := f.sync(t, reconcile.Both)

	assert.Equal(t, []string{"PMP-001", "TNK-001"}, res.MissingInSource)
	assert.Len(t, f.records(t), 2)
	assert.False(t, res.HasChanges())
}

func TestSyncDrawingAccessError(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom)
	f.host.ReadErr = stderrors.New("drawing locked by another user")

	_, err := f.engine.Sync(context.Background(), f.project.ID, f.host, reconcile.Fixed(reconcile.SourceToStore))
	require.Error(t, err)
	assert.True(t, errors.IsDrawingAccess(err))
	assert.Equal(t, []errors.Stage{errors.StageExtract}, f.recorder.failures)
}

func TestSyncUnknownProject(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom)
	_, err := f.engine.Sync(context.Background(), "nope", f.host, reconcile.Fixed(reconcile.SourceToStore))
	assert.True(t, errors.IsNotFound(err))
}

func TestChooserSeesPlan(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "A", BlockName: "PMP-TAG-001", Marker: marker("PMP-001"), Attributes: map[string]string{"DESC": "Feed"}},
		drawing.Object{Handle: "B", BlockName: "PMP-NEW"},
	)
	f.seed(t, storetest.NewRecord(f.project.ID, "PMP-001"), storetest.NewRecord(f.project.ID, "TNK-001"))

	var seen *reconcile.Plan
	chooser := reconcile.ChooserFunc(func(_ context.Context, p *reconcile.Plan) (reconcile.Direction, error) {
		seen = p
		return reconcile.SourceToStore, nil
	})
	_, err := f.engine.Sync(context.Background(), f.project.ID, f.host, chooser)
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, []string{"PMP-NEW"}, seen.NewInSource)
	assert.Equal(t, []string{"PMP-001"}, seen.MatchedBoth)
	assert.Equal(t, []string{"TNK-001"}, seen.MissingInSource)
	assert.Equal(t, 1, seen.StoreUpdates)
	assert.Equal(t, 2, seen.Count(reconcile.SourceToStore))
	assert.Equal(t, "unit-100.dwg", seen.DrawingID)
	assert.Equal(t, 2, seen.Stats.Matched)
}

func TestExtractAndStoreOnlyAdds(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "A", BlockName: "PMP-TAG-001", Marker: marker("PMP-001"), Attributes: map[string]string{"DESC": "changed"}},
		drawing.Object{Handle: "B", BlockName: "TANK-A"},
	)
	f.seed(t, storetest.NewRecord(f.project.ID, "PMP-001"))

	res, err := f.engine.ExtractAndStore(context.Background(), f.project.ID, f.host)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 0, res.Updated)

	recs := f.records(t)
	require.Len(t, recs, 2)
	assert.Empty(t, recs[0].Description)
	assert.Equal(t, "TNK-001", recs[1].TagNumber)
}

func TestPreviewIsReadOnly(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "1", BlockName: "HX-SHELL", Attributes: map[string]string{"TYPE": "Heat Exchanger"}},
		drawing.Object{Handle: "2", BlockName: "PMP-NEW", Marker: marker("PMP-009")},
		drawing.Object{Handle: "3", BlockName: "TITLEBLOCK"},
	)

	items, stats, err := f.engine.Preview(context.Background(), f.host)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Scanned)
	require.Len(t, items, 2)

	assert.Equal(t, "Heat Exchanger", items[0].EquipmentType)
	assert.Equal(t, 1.0, items[0].Confidence)
	assert.False(t, items[0].Tagged)

	assert.Equal(t, "Pump", items[1].EquipmentType)
	assert.Equal(t, 0.0, items[1].Confidence)
	assert.True(t, items[1].Tagged)
	assert.Equal(t, "PMP-009", items[1].Tag)

	assert.Empty(t, f.classifier.Mappings())
}

func TestStatus(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "A", BlockName: "PMP-TAG-001", Marker: marker("PMP-001")},
		drawing.Object{Handle: "B", BlockName: "PMP-NEW"},
		drawing.Object{Handle: "C", BlockName: "PMP-OLD", Marker: marker("PMP-009")},
	)
	f.seed(t, storetest.NewRecord(f.project.ID, "PMP-001"))

	report, err := f.engine.Status(context.Background(), f.project.ID, f.host, true)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, 1, report.Tagged)
	assert.Equal(t, 1, report.Untagged)
	assert.Equal(t, 3, report.Highlighted)
	assert.Equal(t, map[string]bool{"A": true, "B": false, "C": true}, f.host.Highlights())

	states := map[string]reconcile.ObjectState{}
	for _, o := range report.Objects {
		states[o.Handle] = o.State
	}
	assert.Equal(t, reconcile.StateSynced, states["A"])
	assert.Equal(t, reconcile.StateUntagged, states["B"])
	assert.Equal(t, reconcile.StateTagged, states["C"])

	a, _ := f.host.Object("A")
	assert.Equal(t, marker("PMP-001"), a.Marker)
}

func TestStatusAfterStoreChange(t *testing.T) {
	f := newFixture(t, equipment.TagModeCustom,
		drawing.Object{Handle: "A", BlockName: "PMP-TAG-001", Marker: marker("PMP-001")},
	)
	rec := storetest.NewRecord(f.project.ID, "PMP-001")
	rec.ModifiedAt = fixed
	f.seed(t, rec)

	report, err := f.engine.Status(context.Background(), f.project.ID, f.host, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Tagged)
	assert.Empty(t, f.host.Highlights())
}

func TestTagOne(t *testing.T) {
	newTagFixture := func(t *testing.T) (*fixture, *equipment.Record) {
		f := newFixture(t, equipment.TagModeCustom,
			drawing.Object{Handle: "B", BlockName: "PMP-NEW", Attributes: map[string]string{"DESC": "Booster"}},
			drawing.Object{Handle: "C", BlockName: "PMP-DUP"},
		)
		seed := storetest.NewRecord(f.project.ID, "PMP-001")
		f.seed(t, seed)
		return f, seed
	}
	ctx := context.Background()

	t.Run("generates next tag", func(t *testing.T) {
		f, seed := newTagFixture(t)
		res, err := f.engine.TagOne(ctx, f.project.ID, f.host, reconcile.TagRequest{
			Handle:      "B",
			Confirmed:   true,
			UpstreamTag: "pmp-001",
		})
		require.NoError(t, err)
		assert.False(t, res.Linked)
		assert.NoError(t, res.Warning)
		assert.Equal(t, "PMP-002", res.Record.TagNumber)
		assert.Equal(t, "Booster", res.Record.Description)
		assert.Equal(t, seed.ID, equipment.Deref(res.Record.UpstreamID))
		assert.Equal(t, "PMP-002", markerTag(t, f.host, "B"))

		assert.Len(t, f.records(t), 2)
		m := f.classifier.Mappings()
		require.Len(t, m, 1)
		assert.True(t, m[0].ConfirmedByUser)
	})

	t.Run("explicit tag and area", func(t *testing.T) {
		f, _ := newTagFixture(t)
		res, err := f.engine.TagOne(ctx, f.project.ID, f.host, reconcile.TagRequest{
			Handle:        "B",
			Tag:           "P-101",
			EquipmentType: "Booster Pump",
			Area:          "300",
		})
		require.NoError(t, err)
		assert.Equal(t, "P-101", res.Record.TagNumber)
		assert.Equal(t, "Booster Pump", res.Record.EquipmentType)
		assert.Equal(t, "300", res.Record.Area)
	})

	t.Run("duplicate fails", func(t *testing.T) {
		f, seed := newTagFixture(t)
		_, err := f.engine.TagOne(ctx, f.project.ID, f.host, reconcile.TagRequest{Handle: "C", Tag: "pmp-001"})
		require.Error(t, err)
		assert.True(t, errors.IsAlreadyExists(err))
		var dup *errors.DuplicateTagError
		require.True(t, errors.As(err, &dup))
		assert.Equal(t, seed.ID, dup.ExistingID)

		c, _ := f.host.Object("C")
		assert.Nil(t, c.Marker)
		assert.Empty(t, f.classifier.Mappings())
	})

	t.Run("retry after duplicate learns once", func(t *testing.T) {
		f, _ := newTagFixture(t)
		req := reconcile.TagRequest{Handle: "C", Tag: "PMP-001", EquipmentType: "Pump"}
		_, err := f.engine.TagOne(ctx, f.project.ID, f.host, req)
		require.True(t, errors.IsAlreadyExists(err))

		req.Tag = "PMP-050"
		res, err := f.engine.TagOne(ctx, f.project.ID, f.host, req)
		require.NoError(t, err)
		assert.Equal(t, "PMP-050", res.Record.TagNumber)

		m := f.classifier.Mappings()
		require.Len(t, m, 1)
		assert.Equal(t, 1, m[0].UsageCount)
	})

	t.Run("duplicate links", func(t *testing.T) {
		f, seed := newTagFixture(t)
		res, err := f.engine.TagOne(ctx, f.project.ID, f.host, reconcile.TagRequest{
			Handle:      "C",
			Tag:         "PMP-001",
			OnDuplicate: reconcile.DuplicateLink,
		})
		require.NoError(t, err)
		assert.True(t, res.Linked)
		assert.Equal(t, seed.ID, res.Record.ID)
		assert.Equal(t, "C", equipment.Deref(res.Record.SourceHandle))
		assert.Len(t, f.records(t), 1)
		assert.Equal(t, "PMP-001", markerTag(t, f.host, "C"))
	})

	t.Run("invalid tag", func(t *testing.T) {
		f, _ := newTagFixture(t)
		_, err := f.engine.TagOne(ctx, f.project.ID, f.host, reconcile.TagRequest{Handle: "B", Tag: "PU"})
		require.Error(t, err)
		assert.True(t, errors.IsValidationError(err))
		assert.Len(t, f.records(t), 1)
		assert.Empty(t, f.classifier.Mappings())
	})

	t.Run("unknown handle", func(t *testing.T) {
		f, _ := newTagFixture(t)
		_, err := f.engine.TagOne(ctx, f.project.ID, f.host, reconcile.TagRequest{Handle: "Z"})
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("unknown upstream", func(t *testing.T) {
		f, _ := newTagFixture(t)
		_, err := f.engine.TagOne(ctx, f.project.ID, f.host, reconcile.TagRequest{Handle: "B", UpstreamTag: "TNK-404"})
		assert.True(t, errors.IsNotFound(err))
		assert.Len(t, f.records(t), 1)
	})

	t.Run("marker write failure is a warning", func(t *testing.T) {
		f, _ := newTagFixture(t)
		f.host.FailWrites["B"] = stderrors.New("read-only")
		res, err := f.engine.TagOne(ctx, f.project.ID, f.host, reconcile.TagRequest{Handle: "B"})
		require.NoError(t, err)
		assert.True(t, errors.Is(res.Warning, errors.ErrPartialApply))
		assert.Len(t, f.records(t), 2)
	})
}

func TestNewRequiresStore(t *testing.T) {
	_, err := reconcile.New(nil)
	assert.True(t, errors.IsValidationError(err))

	_, err = reconcile.New(memory.New(), reconcile.WithMarkerName(" "))
	assert.True(t, errors.IsValidationError(err))
}
