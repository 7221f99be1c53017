// Package catalog loads the transparency rule tree and answers lookups on it.
//
// Every top-level rule opens its own scope: names are unique inside a scope
// and lookups are always qualified by (root, name). The catalog is an arena
// built in a single pass and published only when the pass succeeds, so it is
// safe for concurrent readers without locking.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/TrasparenzAI/rule-service/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed data/rules.json
var defaultRules []byte

// Catalog is the immutable rule arena.
type Catalog struct {
	rules       []domain.Rule
	roots       []int
	scopes      map[string]map[string]int
	defaultRoot string
}

// Node is a nested, read-only view of a rule used for listings.
type Node struct {
	Name     string        `json:"name"`
	Terms    []domain.Term `json:"terms"`
	Children []Node        `json:"children,omitempty"`
}

// Load builds a catalog from a YAML or JSON definition node.
// defaultRoot must name one of the top-level rules.
func Load(def *yaml.Node, defaultRoot string) (*Catalog, error) {
	roots, err := decodeRoots(def)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: catalog has no rules", domain.ErrInvalidRule)
	}

	c := &Catalog{
		scopes:      make(map[string]map[string]int, len(roots)),
		defaultRoot: defaultRoot,
	}
	for i := range roots {
		if _, dup := c.scopes[roots[i].name]; dup {
			return nil, fmt.Errorf("%w: root %q", domain.ErrDuplicateRule, roots[i].name)
		}
		scope := make(map[string]int)
		c.scopes[roots[i].name] = scope
		id, addErr := c.add(roots[i].name, scope, &roots[i])
		if addErr != nil {
			return nil, addErr
		}
		c.roots = append(c.roots, id)
	}

	if _, ok := c.scopes[defaultRoot]; !ok {
		return nil, fmt.Errorf("%w: default root %q is not declared", domain.ErrRuleNotFound, defaultRoot)
	}
	return c, nil
}

// LoadBytes builds a catalog from YAML or JSON bytes.
func LoadBytes(data []byte, defaultRoot string) (*Catalog, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&node); err != nil {
		return nil, fmt.Errorf("parse rule definitions: %w", err)
	}
	return Load(&node, defaultRoot)
}

// LoadFile builds a catalog from a YAML or JSON file.
func LoadFile(path, defaultRoot string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule definitions %s: %w", path, err)
	}
	return LoadBytes(data, defaultRoot)
}

// Default builds the embedded "Amministrazione Trasparente" catalog.
func Default(defaultRoot string) (*Catalog, error) {
	return LoadBytes(defaultRules, defaultRoot)
}

// add registers def and its descendants depth-first and returns the id of def.
func (c *Catalog) add(root string, scope map[string]int, def *definition) (int, error) {
	if _, dup := scope[def.name]; dup {
		return 0, fmt.Errorf("%w: %q in root %q", domain.ErrDuplicateRule, def.name, root)
	}

	id := len(c.rules)
	c.rules = append(c.rules, domain.Rule{
		ID:    id,
		Name:  def.name,
		Root:  root,
		Terms: def.terms,
	})
	scope[def.name] = id

	children := make([]int, 0, len(def.children))
	for i := range def.children {
		childID, err := c.add(root, scope, &def.children[i])
		if err != nil {
			return 0, err
		}
		children = append(children, childID)
	}
	c.rules[id].Children = children
	return id, nil
}

// DefaultRoot returns the root used when a caller does not name one.
func (c *Catalog) DefaultRoot() string {
	return c.defaultRoot
}

// Roots returns the top-level rule names in declaration order.
func (c *Catalog) Roots() []string {
	names := make([]string, len(c.roots))
	for i, id := range c.roots {
		names[i] = c.rules[id].Name
	}
	return names
}

// Len returns the number of rules across all scopes.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// Resolve finds a rule. An empty root selects the default root and an empty
// name selects the root rule itself.
func (c *Catalog) Resolve(root, name string) (*domain.Rule, error) {
	if root == "" {
		root = c.defaultRoot
	}
	scope, ok := c.scopes[root]
	if !ok {
		return nil, fmt.Errorf("%w: root %q", domain.ErrRuleNotFound, root)
	}
	if name == "" {
		name = root
	}
	id, ok := scope[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in root %q", domain.ErrRuleNotFound, name, root)
	}
	return &c.rules[id], nil
}

// ChildrenOf returns the direct children of the resolved rule in declaration order.
func (c *Catalog) ChildrenOf(root, name string) ([]*domain.Rule, error) {
	rule, err := c.Resolve(root, name)
	if err != nil {
		return nil, err
	}
	return c.Children(rule), nil
}

// Children returns the direct children of rule.
func (c *Catalog) Children(rule *domain.Rule) []*domain.Rule {
	children := make([]*domain.Rule, len(rule.Children))
	for i, id := range rule.Children {
		children[i] = &c.rules[id]
	}
	return children
}

// Tree returns the nested view of a root. An empty root selects the default one.
func (c *Catalog) Tree(root string) (Node, error) {
	rule, err := c.Resolve(root, "")
	if err != nil {
		return Node{}, err
	}
	return c.node(rule), nil
}

func (c *Catalog) node(rule *domain.Rule) Node {
	n := Node{Name: rule.Name, Terms: rule.Terms}
	for _, child := range c.Children(rule) {
		n.Children = append(n.Children, c.node(child))
	}
	return n
}
