package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Dataset {
	return Dataset{
		Headers: []string{"ID", "Name", "Adherence Rate"},
		Rows: []map[string]string{
			{"ID": "p1", "Name": "Jane, Doe", "Adherence Rate": "67%"},
			{"ID": "p2", "Name": "John"},
		},
	}
}

func TestCSVRenderOrdersByHeader(t *testing.T) {
	out, err := NewCSVExporter().Render(sample())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ID,Name,Adherence Rate", lines[0])
	assert.Equal(t, `p1,"Jane, Doe",67%`, lines[1])
	assert.Equal(t, "p2,John,", lines[2])
}

func TestCSVRenderNeutralizesFormulas(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"Name", "Phone", "Notes"},
		Rows: []map[string]string{
			{"Name": "=HYPERLINK(\"x\")", "Phone": "+1 (555) 010-2000", "Notes": "-cmd"},
			{"Name": "@sum", "Phone": "-", "Notes": "fine"},
		},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `"'=HYPERLINK(""x"")",+1 (555) 010-2000,'-cmd`, lines[1])
	assert.Equal(t, "'@sum,-,fine", lines[2])
}

func TestRenderRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{}, "x")
	assert.Error(t, err)
}

func TestPDFRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sample(), "Patients Report")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	assert.Equal(t, "patients.csv", f.Filename("patients"))

	f, err = ParseFormat("pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}
