package search

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidQuery is returned for queries that cannot be parsed or that are
// empty once analyzed.
var ErrInvalidQuery = errors.New("invalid query")

// clause is a single term, or a phrase when it holds more than one token.
// Token positions are relative to the first token of the clause.
type clause struct {
	tokens []Token
}

func (c clause) isPhrase() bool {
	return len(c.tokens) > 1
}

// conjunction is one OR alternative: every required clause must match and no
// excluded clause may match.
type conjunction struct {
	required []clause
	excluded []clause
}

type query struct {
	alternatives []conjunction
	// boost is the whole query as a phrase; empty when the query has OR alternatives.
	boost clause
	// terms are the distinct positive terms, used to count raw matches.
	terms []string
}

// parseQuery reads a subset of the Lucene classic syntax with AND as the
// default operator: bare words, "quoted phrases", -excluded words or phrases
// (also NOT word), +required words and OR between alternatives.
func parseQuery(input string, analyzer *Analyzer) (*query, error) {
	chunks, err := lex(input)
	if err != nil {
		return nil, err
	}

	var (
		q        query
		current  conjunction
		positive []string
		negate   bool
		alts     = 1
		seen     = make(map[string]struct{})
	)
	flush := func() {
		if len(current.required) > 0 {
			q.alternatives = append(q.alternatives, current)
		}
		current = conjunction{}
	}

	for _, ch := range chunks {
		if !ch.quoted {
			switch ch.text {
			case "OR", "||":
				flush()
				alts++
				negate = false
				continue
			case "AND", "&&":
				continue
			case "NOT":
				negate = true
				continue
			}
		}

		excluded := negate || ch.excluded
		negate = false

		if !excluded {
			// Stopword chunks still count for the whole-query phrase so it keeps their gaps.
			positive = append(positive, ch.text)
		}
		tokens := analyzer.Analyze(ch.text)
		if len(tokens) == 0 {
			continue
		}
		if excluded {
			current.excluded = append(current.excluded, newClause(tokens))
			continue
		}

		for _, t := range tokens {
			if _, ok := seen[t.Term]; !ok {
				seen[t.Term] = struct{}{}
				q.terms = append(q.terms, t.Term)
			}
		}
		if ch.quoted {
			current.required = append(current.required, newClause(tokens))
			continue
		}
		for _, t := range tokens {
			current.required = append(current.required, clause{tokens: []Token{{Term: t.Term}}})
		}
	}
	flush()

	if len(q.alternatives) == 0 {
		return nil, fmt.Errorf("%w: %q has no searchable terms", ErrInvalidQuery, input)
	}
	if alts == 1 {
		q.boost = newClause(analyzer.Analyze(strings.Join(positive, " ")))
	}
	return &q, nil
}

func newClause(tokens []Token) clause {
	if len(tokens) == 0 {
		return clause{}
	}
	out := make([]Token, len(tokens))
	base := tokens[0].Pos
	for i, t := range tokens {
		out[i] = Token{Term: t.Term, Pos: t.Pos - base}
	}
	return clause{tokens: out}
}

type chunk struct {
	text     string
	quoted   bool
	excluded bool
}

// lex splits the query on whitespace, keeping quoted phrases together.
func lex(input string) ([]chunk, error) {
	var (
		chunks []chunk
		runes  = []rune(input)
	)
	for i := 0; i < len(runes); {
		if unicode.IsSpace(runes[i]) {
			i++
			continue
		}

		var c chunk
		switch runes[i] {
		case '-', '!':
			c.excluded = true
			i++
		case '+':
			i++
		}

		if i < len(runes) && runes[i] == '"' {
			end := indexRune(runes, i+1, '"')
			if end < 0 {
				return nil, fmt.Errorf("%w: unbalanced quote in %q", ErrInvalidQuery, input)
			}
			c.text = string(runes[i+1 : end])
			c.quoted = true
			chunks = append(chunks, c)
			i = end + 1
			continue
		}

		start := i
		for i < len(runes) && !unicode.IsSpace(runes[i]) && runes[i] != '"' {
			i++
		}
		c.text = string(runes[start:i])
		if c.text != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

func indexRune(runes []rune, from int, r rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
