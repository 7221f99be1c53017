package classify

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrasparenzAI/rule-service/internal/domain"
)

func TestRender(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	render(&buf, []domain.Outcome{
		domain.Single{Result: domain.Result{
			URL: "/bandi", Rule: "bandi-concorso", Term: "Bandi di concorso",
			Content: "Bandi di concorso", Where: domain.WhereText, Leaf: true, Status: 200, Score: 4.25,
		}},
		domain.Tied{Rule: "personale", Results: []domain.Result{
			{URL: "/personale-a", Rule: "personale", Term: "Personale", Status: 200},
			{URL: "/personale-b", Rule: "personale", Term: "Personale", Status: 200},
		}},
		domain.NotFound{Rule: "pagamenti", Terms: "Pagamenti,IBAN", Leaf: true},
	})

	out := buf.String()
	assert.Contains(t, out, "/bandi")
	assert.Contains(t, out, "4.250")
	assert.Contains(t, out, "/personale-a")
	assert.Contains(t, out, "/personale-b")
	assert.Equal(t, 2, strings.Count(out, "207"))
	assert.Contains(t, out, "Pagamenti,IBAN")
	assert.Contains(t, out, "404")
}

func TestReadPage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte("<html></html>"), 0o600))

	got, err := readPage(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", got)

	got, err = readPage(strings.NewReader("PGh0bWw+"), "-")
	require.NoError(t, err)
	assert.Equal(t, "PGh0bWw+", got)

	got, err = readPage(nil, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = readPage(nil, filepath.Join(t.TempDir(), "missing.html"))
	require.Error(t, err)
}
