package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	TagNumber string  `json:"tag_number"`
	Handle    *string `json:"handle,omitempty"`
	Secret    string  `json:"-"`
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"table", "JSON", "yaml", "wide", ""} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestDetectFormatExplicit(t *testing.T) {
	assert.Equal(t, FormatYAML, DetectFormat("YAML"))
}

func TestTableFromStructSlice(t *testing.T) {
	h := "A1"
	var b strings.Builder
	require.NoError(t, NewFormatter(FormatTable).Format(&b, []row{{TagNumber: "PMP-001", Handle: &h, Secret: "x"}}))

	out := b.String()
	assert.Contains(t, strings.ToUpper(out), "TAG NUMBER")
	assert.Contains(t, out, "PMP-001")
	assert.Contains(t, out, "A1")
}

func TestWideColumns(t *testing.T) {
	data := Data{
		Headers:  []string{"Tag", "Type", "Description"},
		Rows:     [][]string{{"PMP-001", "Pump", "Feed pump"}},
		WideFrom: 2,
	}

	var narrow strings.Builder
	require.NoError(t, NewFormatter(FormatTable).Format(&narrow, data))
	assert.NotContains(t, narrow.String(), "Feed pump")

	var wide strings.Builder
	require.NoError(t, NewFormatter(FormatWide).Format(&wide, data))
	assert.Contains(t, wide.String(), "Feed pump")
}

func TestPrintStructured(t *testing.T) {
	var b strings.Builder
	require.NoError(t, Print(&b, FormatYAML, map[string]int{"added": 2}, Data{}))
	assert.Equal(t, "added: 2\n", b.String())

	b.Reset()
	require.NoError(t, Print(&b, FormatJSON, nil, Data{Headers: []string{"A"}}))
	assert.Contains(t, b.String(), `"Headers"`)
}
