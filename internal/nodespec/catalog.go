package nodespec

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gyaneshwarpardhi/flowcode/internal/registry"
)

var (
	// ErrNoGenerator is returned (wrapped) when a spec has no generator for a language.
	ErrNoGenerator = errors.New("no code generator")
	// ErrNoVariant is returned (wrapped) by catalog generators when no variant's
	// when guard holds for the node's inputs.
	ErrNoVariant = errors.New("no template variant applies")
)

// Catalog is the set of node templates available to editors and the compiler.
// Readers may share a catalog across goroutines; reloads build a new one.
type Catalog struct {
	specs *registry.Registry[*Spec]
}

// NewCatalog returns a catalog holding the built-in batch templates.
func NewCatalog() *Catalog {
	c := &Catalog{specs: registry.New[*Spec]("node spec")}
	for _, s := range builtins() {
		c.specs.MustRegister(s.Name, s)
	}
	return c
}

// Register adds a template; names must be unique.
func (c *Catalog) Register(s *Spec) error {
	if s.Name == "" {
		return fmt.Errorf("register spec: name is required")
	}
	if _, exists := c.specs.Lookup(s.Name); exists {
		return fmt.Errorf("register spec %q: duplicate name", s.Name)
	}
	c.specs.Register(s.Name, s)
	return nil
}

// Spec returns the template registered under name.
func (c *Catalog) Spec(name string) (*Spec, error) {
	return c.specs.Get(name)
}

// Generator returns the code generator for a spec and language.
// The error wraps registry.ErrNotFound for an unknown spec and ErrNoGenerator
// for a known spec without that language.
func (c *Catalog) Generator(specName, language string) (Generator, error) {
	s, err := c.specs.Get(specName)
	if err != nil {
		return nil, err
	}
	gen, ok := s.Generators[language]
	if !ok || gen == nil {
		return nil, fmt.Errorf("spec %q, language %q: %w", specName, language, ErrNoGenerator)
	}
	return gen, nil
}

// Specs returns all templates in registration order.
func (c *Catalog) Specs() []*Spec {
	return c.specs.Values()
}

// Len returns the number of templates.
func (c *Catalog) Len() int {
	return c.specs.Len()
}

// Categories groups spec names by category, both sorted.
func (c *Catalog) Categories() map[string][]string {
	out := make(map[string][]string)
	for _, s := range c.specs.Values() {
		out[s.Category] = append(out[s.Category], s.Name)
	}
	for _, names := range out {
		sort.Strings(names)
	}
	return out
}
