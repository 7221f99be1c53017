// Package domain contains the types shared by the catalog, the extractors,
// the search engine and the matcher.
package domain

import (
	"net/http"
	"strings"
)

// DefaultTermCode is the outcome code of a term that does not declare one.
const DefaultTermCode = http.StatusOK

// Term is one candidate search phrase of a rule.
type Term struct {
	Key  string `json:"key"  yaml:"key"`
	Code int    `json:"code" yaml:"code"`
}

// Rule is a node of the transparency obligation tree. Rules are built once by
// the catalog and never mutated afterwards.
type Rule struct {
	// ID is the arena index of the rule inside its catalog.
	ID       int
	Name     string
	Root     string
	Terms    []Term
	Children []int
}

// IsLeaf reports whether the rule has no children.
func (r *Rule) IsLeaf() bool {
	return len(r.Children) == 0
}

// TermKeys joins the candidate term keys with commas.
func (r *Rule) TermKeys() string {
	keys := make([]string, len(r.Terms))
	for i, t := range r.Terms {
		keys[i] = t.Key
	}
	return strings.Join(keys, ",")
}
