package tag

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/tagsync/internal/cmd/cmdtest"
	"github.com/agentstation/tagsync/pkg/drawing"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/reconcile"
	"github.com/agentstation/tagsync/pkg/store/storetest"
)

func drawingPath(t *testing.T) string {
	return cmdtest.WriteDrawing(t, "unit-100",
		drawing.Object{Handle: "1F", BlockName: "PUMP_CENTRIFUGAL"},
		drawing.Object{Handle: "2A", BlockName: "EQP_SKID"},
	)
}

func decode(t *testing.T, out string) reconcile.TagResult {
	t.Helper()
	var res reconcile.TagResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	return res
}

func TestTagGenerated(t *testing.T) {
	app, client := cmdtest.NewApp(t)
	cmdtest.NewProject(t, client, "Unit 100", equipment.TagModeCustom)
	path := drawingPath(t)

	// Rule-based guesses have zero confidence; without a terminal the
	// suggestion is used as is.
	out, _, err := cmdtest.Run(t, NewCommand(app), path, "1F", "-p", "Unit 100")
	require.NoError(t, err)

	res := decode(t, out)
	assert.Equal(t, "PMP-001", res.Record.TagNumber)
	assert.Equal(t, "Pump", res.Record.EquipmentType)
	assert.False(t, res.Linked)

	host := cmdtest.ReadDrawing(t, path)
	o, _ := host.Object("1F")
	assert.Equal(t, "PMP-001", o.Marker[drawing.MarkerKeyTag])
}

func TestTagExplicit(t *testing.T) {
	app, client := cmdtest.NewApp(t)
	cmdtest.NewProject(t, client, "Unit 100", equipment.TagModeCustom)
	path := drawingPath(t)

	out, _, err := cmdtest.Run(t, NewCommand(app), path, "2A", "-p", "Unit 100", "--tag", "SKD-010", "--type", "Skid", "--confirm")
	require.NoError(t, err)
	assert.Equal(t, "SKD-010", decode(t, out).Record.TagNumber)

	mappings := client.Classifier().Mappings()
	require.Len(t, mappings, 1)
	assert.Equal(t, "Skid", mappings[0].EquipmentType)
	assert.True(t, mappings[0].ConfirmedByUser)
}

func TestTagInvalid(t *testing.T) {
	app, client := cmdtest.NewApp(t)
	cmdtest.NewProject(t, client, "Unit 100", equipment.TagModeCustom)

	_, _, err := cmdtest.Run(t, NewCommand(app), drawingPath(t), "1F", "-p", "Unit 100", "--tag", "PU")
	var tve *errors.TagValidationError
	assert.True(t, errors.As(err, &tve))
}

func TestTagUnknownHandle(t *testing.T) {
	app, client := cmdtest.NewApp(t)
	cmdtest.NewProject(t, client, "Unit 100", equipment.TagModeCustom)

	_, _, err := cmdtest.Run(t, NewCommand(app), drawingPath(t), "FFFF", "-p", "Unit 100")
	assert.True(t, errors.IsNotFound(err))
}

func TestTagDuplicate(t *testing.T) {
	app, client := cmdtest.NewApp(t)
	project := cmdtest.NewProject(t, client, "Unit 100", equipment.TagModeCustom)
	storetest.Seed(t, client.Store(), storetest.NewRecord(project.ID, "PMP-001"))

	_, _, err := cmdtest.Run(t, NewCommand(app), drawingPath(t), "1F", "-p", "Unit 100", "--tag", "PMP-001")
	var dup *errors.DuplicateTagError
	require.True(t, errors.As(err, &dup))

	out, _, err := cmdtest.Run(t, NewCommand(app), drawingPath(t), "1F", "-p", "Unit 100", "--tag", "PMP-001", "--link")
	require.NoError(t, err)
	res := decode(t, out)
	assert.True(t, res.Linked)
	assert.Equal(t, "1F", equipment.Deref(res.Record.SourceHandle))

	records, err := client.Store().FindByProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestTagInteractive(t *testing.T) {
	app, client := cmdtest.NewApp(t)
	project := cmdtest.NewProject(t, client, "Unit 100", equipment.TagModeCustom)
	storetest.Seed(t, client.Store(), storetest.NewRecord(project.ID, "MTR-001"))
	app.IsInteractive = true
	// Type prompt, then the duplicate prompt: do not link, enter another tag.
	app.Input = strings.NewReader("Motor\nn\nMTR-002\n")

	out, stderr, err := cmdtest.Run(t, NewCommand(app), drawingPath(t), "2A", "-p", "Unit 100", "--tag", "MTR-001")
	require.NoError(t, err)
	assert.Contains(t, stderr, "already exists")

	res := decode(t, out)
	assert.Equal(t, "MTR-002", res.Record.TagNumber)
	assert.Equal(t, "Motor", res.Record.EquipmentType)

	// The rejected first attempt is not counted as a use.
	mappings := client.Classifier().Mappings()
	require.Len(t, mappings, 1)
	assert.True(t, mappings[0].ConfirmedByUser)
	assert.Equal(t, 1, mappings[0].UsageCount)
}

func TestTagAutoAcceptsConfidentMapping(t *testing.T) {
	app, client := cmdtest.NewApp(t)
	cmdtest.NewProject(t, client, "Unit 100", equipment.TagModeCustom)
	client.Classifier().Import([]equipment.LearnedMapping{
		{BlockIdentifier: "EQP_SKID", EquipmentType: "Filter", UsageCount: 10, ConfirmedByUser: true},
	})
	app.IsInteractive = true

	out, stderr, err := cmdtest.Run(t, NewCommand(app), drawingPath(t), "2A", "-p", "Unit 100")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "Equipment type")
	assert.Equal(t, "FLT-001", decode(t, out).Record.TagNumber)
}
