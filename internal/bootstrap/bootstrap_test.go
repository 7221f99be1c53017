package bootstrap_test

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrasparenzAI/rule-service/internal/bootstrap"
	"github.com/TrasparenzAI/rule-service/internal/config"
	"github.com/TrasparenzAI/rule-service/internal/logger"
)

const homePage = `<html><body>
<nav><a href="/home">Home</a> <a href="/amministrazione-trasparente">Amministrazione Trasparente</a></nav>
<ul>
  <li><a href="/at/disposizioni-generali">Disposizioni generali</a></li>
  <li><a href="/at/organizzazione">Organizzazione</a></li>
  <li><a href="/at/consulenti">Consulenti e collaboratori</a></li>
</ul>
</body></html>`

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
service:
  port: 9090
rules:
  root: albo
  definitions:
    albo:
      terms:
        - key: Albo pretorio
`)

	cfg, err := bootstrap.LoadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Service.Port)
	assert.True(t, cfg.Service.Debug)
	assert.Equal(t, "debug", cfg.Logging.Level)

	app, err := bootstrap.New(cfg, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"albo"}, app.Catalog.Roots())
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
matcher:
  stages: [pattern, telepathy]
`)

	_, err := bootstrap.LoadConfig(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telepathy")
}

func TestNew_UnknownDefaultRoot(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Rules.Root = "missing"

	_, err := bootstrap.New(cfg, logger.NewNop())
	require.Error(t, err)
}

func TestServer_EndToEnd(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	app, err := bootstrap.New(cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	h := app.Server().Handler()
	post := func(target string) *httptest.ResponseRecorder {
		body := base64.StdEncoding.EncodeToString([]byte(homePage))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, target, strings.NewReader(body)))
		return w
	}

	w := post("/v1/rules")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"url":"/amministrazione-trasparente"`)
	assert.Contains(t, w.Body.String(), `"ruleName":"amministrazione-trasparente"`)

	w = post("/v1/rules?ruleName=consulenti-collaboratori")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"url":"/at/consulenti"`)

	w = post("/v1/rules/child")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"url":"/at/disposizioni-generali"`)
	assert.Contains(t, w.Body.String(), `"status":404`)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "amministrazione-trasparente")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `rules_requests_total{kind="rule",result="ok"} 2`)
}
