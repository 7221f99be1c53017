package search

import (
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/it"
	"github.com/blevesearch/bleve/v2/analysis/token/elision"
	"github.com/blevesearch/bleve/v2/analysis/token/stop"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	// Contracted articles removed in front of an apostrophe ("dell'ufficio" -> "ufficio").
	italianArticles  = mustTokenMap(it.ItalianArticles)
	italianStopwords = mustTokenMap(it.ItalianStopWords)
)

func mustTokenMap(words []byte) analysis.TokenMap {
	m := analysis.NewTokenMap()
	if err := m.LoadBytes(words); err != nil {
		panic(err)
	}
	return m
}

// Token is an analyzed term and its position in the field.
// Removed stopwords still consume a position so phrases keep their gaps.
type Token struct {
	Term string
	Pos  int
}

// Analyzer turns text into Italian search terms. It splits on digits and on a
// configurable set of boundary characters, lower-cases, then runs the Italian
// elision, stopword and light stemming filters. It is safe for concurrent use.
type Analyzer struct {
	boundaries map[rune]struct{}
	filters    []analysis.TokenFilter
}

// NewAnalyzer builds an analyzer whose token boundaries are the runes of tokens.
func NewAnalyzer(tokens string) *Analyzer {
	boundaries := make(map[rune]struct{}, len(tokens))
	for _, r := range tokens {
		boundaries[r] = struct{}{}
	}
	return &Analyzer{
		boundaries: boundaries,
		filters: []analysis.TokenFilter{
			elision.NewElisionFilter(italianArticles),
			stop.NewStopTokensFilter(italianStopwords),
			it.NewItalianLightStemmerFilterFilter(),
		},
	}
}

func (a *Analyzer) isTokenRune(r rune) bool {
	if unicode.IsDigit(r) {
		return false
	}
	_, boundary := a.boundaries[r]
	return !boundary
}

// Analyze returns the terms of text with their positions.
func (a *Analyzer) Analyze(text string) []Token {
	text = norm.NFC.String(text)
	lower := cases.Lower(language.Italian)

	var stream analysis.TokenStream
	for _, raw := range a.split(text) {
		if raw.elided {
			continue
		}
		stream = append(stream, &analysis.Token{
			Term:     []byte(lower.String(raw.text)),
			Position: len(stream),
			Type:     analysis.AlphaNumeric,
		})
	}
	for _, f := range a.filters {
		stream = f.Filter(stream)
	}

	tokens := make([]Token, 0, len(stream))
	for _, t := range stream {
		if len(t.Term) == 0 {
			continue
		}
		tokens = append(tokens, Token{Term: string(t.Term), Pos: t.Position})
	}
	return tokens
}

// Terms returns only the analyzed terms of text.
func (a *Analyzer) Terms(text string) []string {
	tokens := a.Analyze(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

type rawToken struct {
	text string
	// elided marks an article cut off by an apostrophe that is itself a boundary.
	elided bool
}

func (a *Analyzer) split(text string) []rawToken {
	var (
		out   []rawToken
		start = -1
	)
	runes := []rune(text)
	for i, r := range runes {
		if a.isTokenRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			word := string(runes[start:i])
			out = append(out, rawToken{text: word, elided: isApostrophe(r) && isArticle(word)})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, rawToken{text: string(runes[start:])})
	}
	return out
}

func isArticle(word string) bool {
	return italianArticles[strings.ToLower(word)]
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’'
}
