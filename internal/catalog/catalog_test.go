package catalog_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrasparenzAI/rule-service/internal/catalog"
	"github.com/TrasparenzAI/rule-service/internal/domain"
)

const twoRootsYAML = `
first:
  terms:
    - key: Primo
  children:
    alpha:
      terms: [Alfa, "Alfa bis"]
    beta:
      term:
        - key: Beta
          code: 202
      childs:
        gamma:
          terms: [Gamma]
second:
  terms: [Secondo]
  children:
    alpha:
      terms: [Altra alfa]
`

func TestLoadBytes_PreservesOrderAndDefaults(t *testing.T) {
	t.Parallel()

	c, err := catalog.LoadBytes([]byte(twoRootsYAML), "first")
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, c.Roots())
	assert.Equal(t, 6, c.Len())

	children, err := c.ChildrenOf("first", "")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "alpha", children[0].Name)
	assert.Equal(t, "beta", children[1].Name)

	alpha := children[0]
	assert.True(t, alpha.IsLeaf())
	assert.Equal(t, "Alfa,Alfa bis", alpha.TermKeys())
	assert.Equal(t, domain.DefaultTermCode, alpha.Terms[0].Code)

	beta := children[1]
	assert.False(t, beta.IsLeaf())
	assert.Equal(t, 202, beta.Terms[0].Code)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	c, err := catalog.LoadBytes([]byte(twoRootsYAML), "first")
	require.NoError(t, err)

	tests := []struct {
		name     string
		root     string
		rule     string
		wantName string
		wantTerm string
		wantErr  error
	}{
		{name: "default root and rule", wantName: "first", wantTerm: "Primo"},
		{name: "default root, named rule", rule: "gamma", wantName: "gamma", wantTerm: "Gamma"},
		{name: "explicit root", root: "second", wantName: "second", wantTerm: "Secondo"},
		{name: "same name in other scope", root: "second", rule: "alpha", wantName: "alpha", wantTerm: "Altra alfa"},
		{name: "unknown rule", rule: "missing", wantErr: domain.ErrRuleNotFound},
		{name: "unknown root", root: "missing", wantErr: domain.ErrRuleNotFound},
		{name: "rule outside root scope", root: "second", rule: "gamma", wantErr: domain.ErrRuleNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rule, resolveErr := c.Resolve(tt.root, tt.rule)
			if tt.wantErr != nil {
				require.ErrorIs(t, resolveErr, tt.wantErr)
				return
			}
			require.NoError(t, resolveErr)
			assert.Equal(t, tt.wantName, rule.Name)
			assert.Equal(t, tt.wantTerm, rule.Terms[0].Key)
		})
	}
}

func TestLoad_FailsClosed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		root    string
		wantErr error
	}{
		{
			name:    "duplicate name in one scope",
			input:   "root:\n  terms: [R]\n  children:\n    a:\n      terms: [A]\n      children:\n        a:\n          terms: [A2]\n",
			root:    "root",
			wantErr: domain.ErrDuplicateRule,
		},
		{
			name:    "child shadows root",
			input:   "root:\n  terms: [R]\n  children:\n    root:\n      terms: [X]\n",
			root:    "root",
			wantErr: domain.ErrDuplicateRule,
		},
		{
			name:    "rule without terms",
			input:   "root:\n  terms: [R]\n  children:\n    a: {}\n",
			root:    "root",
			wantErr: domain.ErrInvalidRule,
		},
		{
			name:    "term without key",
			input:   "root:\n  terms:\n    - code: 200\n",
			root:    "root",
			wantErr: domain.ErrInvalidRule,
		},
		{
			name:    "not a mapping",
			input:   "- a\n- b\n",
			root:    "root",
			wantErr: domain.ErrInvalidRule,
		},
		{
			name:    "empty document",
			input:   "{}",
			root:    "root",
			wantErr: domain.ErrInvalidRule,
		},
		{
			name:    "default root not declared",
			input:   "root:\n  terms: [R]\n",
			root:    "other",
			wantErr: domain.ErrRuleNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := catalog.LoadBytes([]byte(tt.input), tt.root)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Nil(t, c)
		})
	}
}

func TestLoadBytes_NullChildrenIsLeaf(t *testing.T) {
	t.Parallel()

	c, err := catalog.LoadBytes([]byte("root:\n  terms: [R]\n  children:\n"), "root")
	require.NoError(t, err)

	rule, err := c.Resolve("", "")
	require.NoError(t, err)
	assert.True(t, rule.IsLeaf())
}

func TestDefault(t *testing.T) {
	t.Parallel()

	c, err := catalog.Default("amministrazione-trasparente")
	require.NoError(t, err)

	root, err := c.Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, "Amministrazione Trasparente", root.Terms[0].Key)
	assert.False(t, root.IsLeaf())

	children, err := c.ChildrenOf("", "")
	require.NoError(t, err)
	require.NotEmpty(t, children)
	assert.Equal(t, "disposizioni-generali", children[0].Name)

	consulenti, err := c.Resolve("", "titolari-incarichi-collaborazione-consulenza")
	require.NoError(t, err)
	assert.True(t, consulenti.IsLeaf())
}

func TestTree(t *testing.T) {
	t.Parallel()

	c, err := catalog.LoadBytes([]byte(twoRootsYAML), "first")
	require.NoError(t, err)

	tree, err := c.Tree("")
	require.NoError(t, err)
	assert.Equal(t, "first", tree.Name)
	require.Len(t, tree.Children, 2)
	require.Len(t, tree.Children[1].Children, 1)
	assert.Equal(t, "gamma", tree.Children[1].Children[0].Name)
	assert.Empty(t, tree.Children[0].Children)

	_, err = c.Tree("nope")
	require.ErrorIs(t, err, domain.ErrRuleNotFound)
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := catalog.LoadFile("/nonexistent/rules.yml", "root")
	require.Error(t, err)
}
