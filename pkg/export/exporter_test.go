package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"ID", "Subject", "Status"},
		Rows: []map[string]string{
			{"ID": "2", "Subject": "Hackathon, day 2", "Status": "approved"},
			{"ID": "1", "Subject": "Medical leave", "Status": "pending"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset(), "ignored")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ID,Subject,Status", lines[0])
	assert.Equal(t, `2,"Hackathon, day 2",approved`, lines[1])

	_, err = NewCSVExporter().Render(Dataset{}, "")
	assert.Error(t, err)
}

func TestCSVExporterNeutralisesFormulas(t *testing.T) {
	data := Dataset{
		Headers: []string{"Subject", "Contact"},
		Rows: []map[string]string{
			{"Subject": "=HYPERLINK(\"http://evil.test\")", "Contact": "+6281234"},
			{"Subject": "@SUM(A1)", "Contact": ""},
		},
	}
	out, err := NewCSVExporter().Render(data, "")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `"'=HYPERLINK(""http://evil.test"")",'+6281234`, lines[1])
	assert.Equal(t, "'@SUM(A1),", lines[2])
}

func TestPDFExporterRender(t *testing.T) {
	data := sampleDataset()
	for i := 0; i < 80; i++ {
		data.Rows = append(data.Rows, map[string]string{"ID": "x", "Subject": strings.Repeat("long ", 30), "Status": "pending"})
	}
	out, err := NewPDFExporter().Render(data, "Attendance requests")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Equal(t, "abc...", truncate("abcdefgh", 6))
}
