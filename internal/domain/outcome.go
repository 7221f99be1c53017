package domain

import "net/http"

// Outcome codes. They reuse HTTP status codes as generic signals.
const (
	StatusNotFound        = http.StatusNotFound
	StatusMultiple        = http.StatusMultiStatus
	StatusFailure         = http.StatusInternalServerError
	StatusContentTooLarge = http.StatusRequestEntityTooLarge
)

// Outcome is the result of resolving one rule. It is one of Single, Tied or NotFound.
type Outcome interface {
	Name() string
	Code() int
	IsLeaf() bool
	outcome()
}

// Result is a single classification of a rule against a page.
type Result struct {
	URL     string  `json:"url"`
	Rule    string  `json:"ruleName"`
	Term    string  `json:"term"`
	Content string  `json:"content"`
	Where   string  `json:"where"`
	Leaf    bool    `json:"leaf"`
	Status  int     `json:"status"`
	Score   float64 `json:"score"`
}

// Single is an outcome with exactly one accepted hit.
type Single struct {
	Result
}

func (s Single) Name() string { return s.Rule }
func (s Single) Code() int    { return s.Status }
func (s Single) IsLeaf() bool { return s.Leaf }
func (Single) outcome()       {}

// Tied bundles every hit sharing the best score when the caller has to disambiguate.
type Tied struct {
	Rule    string
	Leaf    bool
	Results []Result
}

func (t Tied) Name() string { return t.Rule }
func (Tied) Code() int      { return StatusMultiple }
func (t Tied) IsLeaf() bool { return t.Leaf }
func (Tied) outcome()       {}

// NotFound reports a rule none of whose terms matched. Terms holds the
// comma-joined term keys for diagnostics.
type NotFound struct {
	Rule  string
	Terms string
	Leaf  bool
}

func (n NotFound) Name() string { return n.Rule }
func (NotFound) Code() int      { return StatusNotFound }
func (n NotFound) IsLeaf() bool { return n.Leaf }
func (NotFound) outcome()       {}

// Found reports whether o is a Single or a Tied outcome.
func Found(o Outcome) bool {
	_, missing := o.(NotFound)
	return o != nil && !missing
}
