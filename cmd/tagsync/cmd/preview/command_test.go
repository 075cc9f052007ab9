package preview

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/tagsync/internal/cmd/cmdtest"
	"github.com/agentstation/tagsync/pkg/drawing"
)

func TestPreview(t *testing.T) {
	app, client := cmdtest.NewApp(t)
	path := cmdtest.WriteDrawing(t, "unit-100",
		drawing.Object{Handle: "1F", BlockName: "PUMP_CENTRIFUGAL", Layer: "EQUIP"},
		drawing.Object{Handle: "2A", BlockName: "DOOR_SINGLE"},
	)

	out, _, err := cmdtest.Run(t, NewCommand(app), path)
	require.NoError(t, err)

	var view View
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "unit-100", view.Drawing)
	assert.Equal(t, 2, view.Stats.Scanned)
	assert.Equal(t, 1, view.Stats.Matched)
	require.Len(t, view.Objects, 1)
	assert.Equal(t, "1F", view.Objects[0].Handle)
	assert.Equal(t, "Pump", view.Objects[0].EquipmentType)
	assert.False(t, view.Objects[0].Tagged)

	assert.Empty(t, client.Classifier().Mappings(), "preview must not learn")
}

func TestPreviewTable(t *testing.T) {
	app, _ := cmdtest.NewApp(t)
	app.Format = "table"
	path := cmdtest.WriteDrawing(t, "unit-100",
		drawing.Object{Handle: "1F", BlockName: "PUMP_CENTRIFUGAL"},
	)

	out, stderr, err := cmdtest.Run(t, NewCommand(app), path)
	require.NoError(t, err)
	assert.Contains(t, out, "PUMP_CENTRIFUGAL")
	assert.Contains(t, stderr, "1 of 1 blocks matched")
}

func TestPreviewMissingDrawing(t *testing.T) {
	app, _ := cmdtest.NewApp(t)
	_, _, err := cmdtest.Run(t, NewCommand(app), "does-not-exist.yaml")
	assert.Error(t, err)
}
