package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(layout Layout) Dataset {
	return Dataset{
		Headers: []string{"Title", "Status"},
		Rows: []map[string]string{
			{"Title": "Phish, reported", "Status": "Open"},
			{"Title": "Malware", "Status": "Resolved"},
		},
		Layout: layout,
	}
}

func TestCSVRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sample(LayoutTable))
	require.NoError(t, err)
	assert.Equal(t, "Title,Status\n\"Phish, reported\",Open\nMalware,Resolved\n", string(out))
}

func TestCSVRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFRenderBothLayouts(t *testing.T) {
	for _, layout := range []Layout{LayoutTable, LayoutRecords} {
		out, err := NewPDFExporter().Render(sample(layout), "Incident Report Export")
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	}
}
