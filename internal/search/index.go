// Package search is the per-request full-text engine used to match rule terms
// against the content units of one page. An Index lives only as long as the
// request that built it.
package search

import (
	"cmp"
	"math"
	"slices"
	"unicode/utf8"

	"github.com/TrasparenzAI/rule-service/internal/domain"
)

// Boosts of the optional clauses added to every query.
const (
	PhraseBoost = 5.0
	WhereBoost  = 1.0
)

// scoreEpsilon absorbs float noise when deciding whether two hits tie.
const scoreEpsilon = 1e-9

// field is an analyzed field: term -> positions.
type field struct {
	postings map[string][]int
	length   int
}

func newField(tokens []Token) field {
	f := field{postings: make(map[string][]int, len(tokens)), length: len(tokens)}
	for _, t := range tokens {
		f.postings[t.Term] = append(f.postings[t.Term], t.Pos)
	}
	return f
}

func (f field) norm() float64 {
	if f.length == 0 {
		return 0
	}
	return 1 / math.Sqrt(float64(f.length))
}

type document struct {
	anchor  domain.Anchor
	content field
	where   field
}

// Index is an immutable in-memory index over the content units of one page.
type Index struct {
	analyzer  *Analyzer
	docs      []document
	contentDF map[string]int
	whereDF   map[string]int
	whereText clause
}

// Build indexes units. Units with a blank href, blank content, or content
// longer than maxUnitLength runes are left out. maxUnitLength <= 0 disables
// the length check.
func Build(units []domain.Anchor, analyzer *Analyzer, maxUnitLength int) *Index {
	ix := &Index{
		analyzer:  analyzer,
		contentDF: make(map[string]int),
		whereDF:   make(map[string]int),
		whereText: newClause(analyzer.Analyze(domain.WhereText)),
	}
	for _, unit := range units {
		if !unit.Indexable() {
			continue
		}
		if maxUnitLength > 0 && utf8.RuneCountInString(unit.Content) > maxUnitLength {
			continue
		}
		doc := document{
			anchor:  unit,
			content: newField(analyzer.Analyze(unit.Content)),
			where:   newField(analyzer.Analyze(unit.Where)),
		}
		for term := range doc.content.postings {
			ix.contentDF[term]++
		}
		for term := range doc.where.postings {
			ix.whereDF[term]++
		}
		ix.docs = append(ix.docs, doc)
	}
	return ix
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	return len(ix.docs)
}

// Search runs query against the content field and returns every hit tied
// for the best score, ordered by score, raw match count and href length.
// No match yields an empty slice and a nil error.
func (ix *Index) Search(input string) ([]domain.SearchHit, error) {
	hits, err := ix.SearchAll(input)
	if err != nil {
		return nil, err
	}
	return TopTied(hits), nil
}

// SearchAll returns every matching hit, best first. Callers filtering hits
// pick the winners afterwards with TopTied.
func (ix *Index) SearchAll(input string) ([]domain.SearchHit, error) {
	q, err := parseQuery(input, ix.analyzer)
	if err != nil {
		return nil, err
	}

	var hits []domain.SearchHit
	for i := range ix.docs {
		doc := &ix.docs[i]
		score, ok := ix.score(q, doc)
		if !ok {
			continue
		}
		hits = append(hits, domain.SearchHit{
			Href:    doc.anchor.Href,
			Content: doc.anchor.Content,
			Where:   doc.anchor.Where,
			Score:   score,
			Matches: matches(q, doc),
		})
	}
	slices.SortStableFunc(hits, compareHits)
	return hits, nil
}

// score returns the relevance of doc and whether doc matches at all.
// Term presence is binary: repeated occurrences do not add to the score.
func (ix *Index) score(q *query, doc *document) (float64, bool) {
	var (
		total   float64
		matched bool
	)
	for _, alt := range q.alternatives {
		s, ok := ix.scoreConjunction(alt, doc)
		if ok {
			total += s
			matched = true
		}
	}
	if !matched {
		return 0, false
	}

	if len(q.boost.tokens) > 0 && doc.content.contains(q.boost) {
		total += PhraseBoost * ix.clauseWeight(q.boost, ix.contentDF) * doc.content.norm()
	}
	if len(ix.whereText.tokens) > 0 && doc.where.contains(ix.whereText) {
		total += WhereBoost * ix.clauseWeight(ix.whereText, ix.whereDF) * doc.where.norm()
	}
	return total, true
}

func (ix *Index) scoreConjunction(alt conjunction, doc *document) (float64, bool) {
	for _, c := range alt.excluded {
		if doc.content.contains(c) {
			return 0, false
		}
	}
	var total float64
	for _, c := range alt.required {
		if !doc.content.contains(c) {
			return 0, false
		}
		total += ix.clauseWeight(c, ix.contentDF) * doc.content.norm()
	}
	return total, true
}

// clauseWeight sums the idf of the clause terms, like a Lucene phrase weight.
func (ix *Index) clauseWeight(c clause, df map[string]int) float64 {
	var w float64
	for _, t := range c.tokens {
		w += idf(len(ix.docs), df[t.Term])
	}
	return w
}

// idf is the BM25 inverse document frequency; it stays positive for any df.
func idf(docs, df int) float64 {
	n, d := float64(docs), float64(df)
	return math.Log(1 + (n-d+0.5)/(d+0.5))
}

// contains reports whether f holds the clause: the term for single-token
// clauses, or every token at its relative position for phrases.
func (f field) contains(c clause) bool {
	if len(c.tokens) == 0 {
		return false
	}
	first, ok := f.postings[c.tokens[0].Term]
	if !ok {
		return false
	}
	if !c.isPhrase() {
		return true
	}
	for _, start := range first {
		if f.phraseAt(c, start) {
			return true
		}
	}
	return false
}

func (f field) phraseAt(c clause, start int) bool {
	for _, t := range c.tokens[1:] {
		if !slices.Contains(f.postings[t.Term], start+t.Pos) {
			return false
		}
	}
	return true
}

// matches counts raw occurrences of the positive query terms in doc.
func matches(q *query, doc *document) int {
	n := 0
	for _, term := range q.terms {
		n += len(doc.content.postings[term])
	}
	return n
}

func compareHits(a, b domain.SearchHit) int {
	if !sameScore(a.Score, b.Score) {
		return cmp.Compare(b.Score, a.Score)
	}
	if c := cmp.Compare(b.Matches, a.Matches); c != 0 {
		return c
	}
	if c := cmp.Compare(len(b.Href), len(a.Href)); c != 0 {
		return c
	}
	return cmp.Compare(a.Href, b.Href)
}

// TopTied keeps the leading hits sharing the best score. hits must be
// ordered as returned by SearchAll.
func TopTied(hits []domain.SearchHit) []domain.SearchHit {
	if len(hits) == 0 {
		return nil
	}
	best := hits[0].Score
	n := 1
	for n < len(hits) && sameScore(hits[n].Score, best) {
		n++
	}
	return hits[:n]
}

func sameScore(a, b float64) bool {
	return math.Abs(a-b) <= scoreEpsilon*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
