package catalog

import (
	"fmt"

	"github.com/TrasparenzAI/rule-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// definition is the decoded, still nested form of one rule.
type definition struct {
	name     string
	terms    []domain.Term
	children []definition
}

// Keys accepted for a rule body. "term" and "childs" are kept for catalogs
// written for the older rule format.
var (
	termKeys     = map[string]bool{"terms": true, "term": true}
	childrenKeys = map[string]bool{"children": true, "childs": true}
)

// decodeRoots turns a mapping of root name -> rule body into definitions,
// keeping declaration order.
func decodeRoots(node *yaml.Node) ([]definition, error) {
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil, nil
		}
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: rule definitions must be a mapping (line %d)", domain.ErrInvalidRule, node.Line)
	}
	return decodeMapping(node)
}

func decodeMapping(node *yaml.Node) ([]definition, error) {
	defs := make([]definition, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		def, err := decodeRule(node.Content[i].Value, node.Content[i+1])
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func decodeRule(name string, body *yaml.Node) (definition, error) {
	def := definition{name: name}
	if name == "" {
		return def, fmt.Errorf("%w: empty rule name (line %d)", domain.ErrInvalidRule, body.Line)
	}
	if body.Kind != yaml.MappingNode {
		return def, fmt.Errorf("%w: rule %q must be a mapping (line %d)", domain.ErrInvalidRule, name, body.Line)
	}

	for i := 0; i+1 < len(body.Content); i += 2 {
		key, value := body.Content[i].Value, body.Content[i+1]
		switch {
		case termKeys[key]:
			terms, err := decodeTerms(name, value)
			if err != nil {
				return def, err
			}
			def.terms = terms
		case childrenKeys[key]:
			if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
				continue
			}
			if value.Kind != yaml.MappingNode {
				return def, fmt.Errorf("%w: children of %q must be a mapping (line %d)", domain.ErrInvalidRule, name, value.Line)
			}
			children, err := decodeMapping(value)
			if err != nil {
				return def, err
			}
			def.children = children
		}
	}

	if len(def.terms) == 0 {
		return def, fmt.Errorf("%w: rule %q has no terms", domain.ErrInvalidRule, name)
	}
	return def, nil
}

func decodeTerms(rule string, node *yaml.Node) ([]domain.Term, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: terms of %q must be a list (line %d)", domain.ErrInvalidRule, rule, node.Line)
	}
	terms := make([]domain.Term, 0, len(node.Content))
	for _, item := range node.Content {
		var term domain.Term
		if item.Kind == yaml.ScalarNode {
			term.Key = item.Value
		} else if err := item.Decode(&term); err != nil {
			return nil, fmt.Errorf("%w: term of %q: %v", domain.ErrInvalidRule, rule, err)
		}
		if term.Key == "" {
			return nil, fmt.Errorf("%w: rule %q has a term without key (line %d)", domain.ErrInvalidRule, rule, item.Line)
		}
		if term.Code == 0 {
			term.Code = domain.DefaultTermCode
		}
		terms = append(terms, term)
	}
	return terms, nil
}
