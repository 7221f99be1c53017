package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrasparenzAI/rule-service/internal/api"
	"github.com/TrasparenzAI/rule-service/internal/catalog"
	"github.com/TrasparenzAI/rule-service/internal/config"
	"github.com/TrasparenzAI/rule-service/internal/domain"
	"github.com/TrasparenzAI/rule-service/internal/extract"
	"github.com/TrasparenzAI/rule-service/internal/logger"
	"github.com/TrasparenzAI/rule-service/internal/matcher"
	"github.com/TrasparenzAI/rule-service/internal/search"
)

const testRules = `{
  "trasparenza": {
    "terms": [{"key": "Amministrazione Trasparente"}],
    "children": {
      "bandi": {"terms": [{"key": "Bandi di concorso"}]},
      "personale": {
        "terms": [{"key": "Personale"}],
        "children": {"dirigenti": {"terms": [{"key": "Dirigenti"}]}}
      },
      "pagamenti": {"terms": [{"key": "Pagamenti"}]}
    }
  },
  "albo": {"terms": [{"key": "Albo pretorio"}]}
}`

// staticExtractor returns the same units for every page.
type staticExtractor []domain.Anchor

func (staticExtractor) Name() string { return "static" }

func (s staticExtractor) Extract(context.Context, extract.Page, bool) ([]domain.Anchor, error) {
	return append([]domain.Anchor(nil), s...), nil
}

type failingMatcher struct{ err error }

func (f failingMatcher) Execute(context.Context, matcher.Request) (domain.Outcome, error) {
	return nil, f.err
}

func (f failingMatcher) ExecuteChildren(context.Context, matcher.Request) ([]domain.Outcome, error) {
	return nil, f.err
}

func text(href, content string) domain.Anchor {
	return domain.Anchor{Href: href, Content: content, Where: domain.WhereText}
}

var pageUnits = staticExtractor{
	text("/trasparenza", "Amministrazione Trasparente"),
	text("/bandi", "Bandi di concorso"),
	text("/personale-a", "Personale"),
	text("/personale-b", "Personale"),
}

func newRouter(t *testing.T, units staticExtractor, secret string) *gin.Engine {
	t.Helper()

	cat, err := catalog.LoadBytes([]byte(testRules), "trasparenza")
	require.NoError(t, err)
	m := matcher.New(cat, search.NewAnalyzer(config.DefaultSearchTokens),
		[]matcher.Stage{{Name: "static", Extractor: units}},
		matcher.Options{MaxPageLength: 1024}, logger.NewNop(), nil)

	return routerFor(m, cat, secret)
}

func routerFor(m api.Matcher, cat *catalog.Catalog, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api.NewHandler(m, cat, 4096).Register(r, secret)
	return r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestClassify(t *testing.T) {
	t.Parallel()

	r := newRouter(t, pageUnits, "")

	w := do(r, http.MethodPost, "/v1/rules?ruleName=bandi", "<html></html>")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "/bandi", got["url"])
	assert.Equal(t, "bandi", got["ruleName"])
	assert.Equal(t, "Bandi di concorso", got["term"])
	assert.Equal(t, "Bandi di concorso", got["content"])
	assert.Equal(t, "text", got["where"])
	assert.Equal(t, true, got["leaf"])
	assert.InDelta(t, 200, got["status"], 0)
	assert.NotContains(t, got, "multiple")
}

func TestClassify_DefaultRuleAndRoot(t *testing.T) {
	t.Parallel()

	r := newRouter(t, pageUnits, "")

	w := do(r, http.MethodPost, "/v1/rules", "<html></html>")
	require.Equal(t, http.StatusOK, w.Code)

	var got api.ResultDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "trasparenza", got.RuleName)
	require.NotNil(t, got.URL)
	assert.Equal(t, "/trasparenza", *got.URL)
	assert.False(t, got.Leaf)
}

func TestClassify_RequestedNonLeafTakesBestOfTies(t *testing.T) {
	t.Parallel()

	r := newRouter(t, pageUnits, "")

	w := do(r, http.MethodPost, "/v1/rules?ruleName=personale&rootRule=trasparenza", "<html></html>")
	require.Equal(t, http.StatusOK, w.Code)

	var got api.ResultDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, http.StatusOK, got.Status)
	assert.Equal(t, "personale", got.RuleName)
	require.NotNil(t, got.URL)
	assert.Equal(t, "/personale-a", *got.URL)
	assert.Empty(t, got.Multiple)
}

func TestClassify_Errors(t *testing.T) {
	t.Parallel()

	r := newRouter(t, pageUnits, "")

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{name: "no term matches", target: "/v1/rules?ruleName=pagamenti", body: "<html></html>", want: http.StatusNotFound},
		{name: "unknown rule", target: "/v1/rules?ruleName=missing", body: "<html></html>", want: http.StatusNotFound},
		{name: "unknown root", target: "/v1/rules?rootRule=missing", body: "<html></html>", want: http.StatusNotFound},
		{name: "page too large", target: "/v1/rules", body: "<html>" + strings.Repeat("x", 2000) + "</html>", want: http.StatusRequestEntityTooLarge},
		{name: "body too large", target: "/v1/rules", body: strings.Repeat("x", 5000), want: http.StatusRequestEntityTooLarge},
		{name: "nothing to classify", target: "/v1/rules", body: "", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := do(r, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())

			var body api.ErrorDTO
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestClassify_UnexpectedFailure(t *testing.T) {
	t.Parallel()

	cat, err := catalog.LoadBytes([]byte(testRules), "trasparenza")
	require.NoError(t, err)
	r := routerFor(failingMatcher{err: context.DeadlineExceeded}, cat, "")

	w := do(r, http.MethodPost, "/v1/rules", "<html></html>")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "deadline", "internal errors are not leaked")

	w = do(r, http.MethodPost, "/v1/rules/child", "<html></html>")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestClassifyChildren(t *testing.T) {
	t.Parallel()

	r := newRouter(t, pageUnits, "")

	w := do(r, http.MethodPost, "/v1/rules/child", "<html></html>")
	require.Equal(t, http.StatusOK, w.Code)

	var got []api.ResultDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 3)

	assert.Equal(t, "bandi", got[0].RuleName)
	assert.Equal(t, 200, got[0].Status)

	assert.Equal(t, "personale", got[1].RuleName)
	assert.Equal(t, domain.StatusMultiple, got[1].Status)
	assert.Len(t, got[1].Multiple, 2)

	assert.Equal(t, "pagamenti", got[2].RuleName)
	assert.Equal(t, http.StatusNotFound, got[2].Status)
	assert.Nil(t, got[2].URL)
	require.NotNil(t, got[2].Term)
	assert.Equal(t, "Pagamenti", *got[2].Term)
	assert.True(t, got[2].Leaf)
}

func TestClassifyChildren_NoneFound(t *testing.T) {
	t.Parallel()

	r := newRouter(t, staticExtractor{text("/home", "Home")}, "")

	w := do(r, http.MethodPost, "/v1/rules/child", "<html></html>")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/v1/rules/child?ruleName=missing", "<html></html>")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTree(t *testing.T) {
	t.Parallel()

	r := newRouter(t, pageUnits, "")

	w := do(r, http.MethodGet, "/v1/rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all map[string]catalog.Node
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 2)
	assert.Len(t, all["trasparenza"].Children, 3)
	assert.Equal(t, "dirigenti", all["trasparenza"].Children[1].Children[0].Name)

	w = do(r, http.MethodGet, "/v1/rules?root=albo", "")
	require.Equal(t, http.StatusOK, w.Code)
	var one map[string]catalog.Node
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &one))
	assert.Equal(t, []string{"albo"}, keys(one))

	w = do(r, http.MethodGet, "/v1/rules?root=missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutesRequireTokenWhenConfigured(t *testing.T) {
	t.Parallel()

	r := newRouter(t, pageUnits, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/v1/rules", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/v1/rules", "<html></html>").Code)
}

func keys(m map[string]catalog.Node) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
