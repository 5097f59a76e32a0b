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
		Title:   "cs.101/a/lab-1 main.py",
		Headers: []string{"username", "content"},
		Rows: [][]string{
			{"alice", "print(1)"},
			{"bob", "x = \"quoted, with comma\""},
		},
	}
}

func TestCSVRender(t *testing.T) {
	out, err := NewCSVExporter(false).Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "username,content\nalice,print(1)\nbob,\"x = \"\"quoted, with comma\"\"\"\n", string(out))
}

func TestCSVNeutralisesFormulas(t *testing.T) {
	data := Dataset{
		Headers: []string{"username", "content"},
		Rows:    [][]string{{"alice", "=HYPERLINK(\"x\")"}, {"bob", "-1"}, {"carol", "a=1"}},
	}
	out, err := NewCSVExporter(true).Render(data)
	require.NoError(t, err)
	assert.Equal(t, "\ufeffusername,content\nalice,\"'=HYPERLINK(\"\"x\"\")\"\nbob,'-1\ncarol,a=1\n", string(out))
}

func TestCSVRejectsRaggedRows(t *testing.T) {
	data := sampleDataset()
	data.Rows = append(data.Rows, []string{"carol"})
	_, err := NewCSVExporter(false).Render(data)
	assert.Error(t, err)

	_, err = NewCSVExporter(false).Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFRender(t *testing.T) {
	data := sampleDataset()
	data.Rows = append(data.Rows, []string{"carol", strings.Repeat("y", 500)})
	out, err := NewPDFExporter().Render(data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	_, err = NewPDFExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFClip(t *testing.T) {
	e := &PDFExporter{MaxCell: 4}
	assert.Equal(t, "abc~", e.clip("abcdef"))
	assert.Equal(t, "abcd", e.clip("abcd"))
}
