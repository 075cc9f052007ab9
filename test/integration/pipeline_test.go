package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentstation/tagsync"
	"github.com/agentstation/tagsync/pkg/drawing"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/logging"
	"github.com/agentstation/tagsync/pkg/reconcile"
)

const exportYAML = `drawing: unit-200
objects:
  - handle: "1A"
    block: PMP-CENTRIFUGAL
    layer: EQUIPMENT
  - handle: "2A"
    block: TANK-VERTICAL
    layer: EQUIPMENT
`

func openClient(t *testing.T, dir string) *tagsync.Client {
	t.Helper()
	client, err := tagsync.New(context.Background(),
		tagsync.WithSQLite(filepath.Join(dir, "tagsync.db")),
		tagsync.WithMappingsFile(filepath.Join(dir, "block-mappings.yaml")),
		tagsync.WithLogger(logging.NewNopLogger()),
	)
	if err != nil {
		t.Fatalf("Failed to open client: %v", err)
	}
	return client
}

func TestDrawingExportPipeline(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "unit-200.yaml")
	if err := os.WriteFile(path, []byte(exportYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	client := openClient(t, dir)
	project, err := client.Store().CreateProject(ctx, equipment.Project{Name: "Unit 200"})
	if err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}

	host, err := drawing.OpenFile(path)
	if err != nil {
		t.Fatalf("Failed to open drawing: %v", err)
	}
	res, err := client.Engine().ExtractAndStore(ctx, project.ID, host)
	if err != nil {
		t.Fatalf("ExtractAndStore failed: %v", err)
	}
	if res.Added != 2 {
		t.Errorf("Expected 2 records added, got %d", res.Added)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Failed to close client: %v", err)
	}

	// Markers were flushed to the export file.
	reopened, err := drawing.OpenFile(path)
	if err != nil {
		t.Fatalf("Failed to reopen drawing: %v", err)
	}
	for _, obj := range reopened.Objects() {
		if obj.Marker[drawing.MarkerKeyTag] == "" {
			t.Errorf("Expected marker on object %s", obj.Handle)
		}
	}

	// A fresh client over the same database finds nothing new.
	client = openClient(t, dir)
	t.Cleanup(func() { _ = client.Close() })

	again, err := client.Engine().Sync(ctx, project.Name, reopened, reconcile.Fixed(reconcile.Both))
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if again.Added != 0 {
		t.Errorf("Expected no new records, got %d", again.Added)
	}

	records, err := client.Store().FindByProject(ctx, project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].TagNumber != "PMP-001" || records[1].TagNumber != "TNK-001" {
		t.Errorf("Unexpected tags %s, %s", records[0].TagNumber, records[1].TagNumber)
	}

	runs, err := client.Store().Runs(ctx, project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("Expected 2 runs, got %d", len(runs))
	}

	if _, err := os.Stat(filepath.Join(dir, "block-mappings.yaml")); err != nil {
		t.Errorf("Expected learned mappings file: %v", err)
	}
}
