// Package catalog holds the fixed set of service categories jobs are posted
// under and the verification documents providers submit per category.
//
// The built-in list is embedded YAML; deployments may point CATALOG_PATH at
// their own file with the same shape. Category names match case-insensitively
// (Unicode case folding) and always resolve to their canonical spelling.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var builtin []byte

// Document is one verification document for a category.
type Document struct {
	Name     string `yaml:"name"     json:"name"`
	Optional bool   `yaml:"optional" json:"optional"`
}

// Category is a service category and its document requirements.
type Category struct {
	Name      string     `yaml:"name"      json:"name"`
	Documents []Document `yaml:"documents" json:"documents"`
}

type file struct {
	Categories []Category `yaml:"categories"`
}

// Catalog is an immutable, case-insensitive category lookup. Safe for
// concurrent use.
type Catalog struct {
	categories []Category
	byKey      map[string]int
}

// ErrEmpty is returned when a catalog source defines no categories.
var ErrEmpty = errors.New("catalog: no categories defined")

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("catalog: built-in categories invalid: %v", err))
	}
	return c
}

// Load reads a catalog from path, or returns Default when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes YAML catalog content. Duplicate names (after case folding)
// and blank names are rejected.
func Parse(b []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, ErrEmpty
	}
	c := &Catalog{
		categories: make([]Category, 0, len(f.Categories)),
		byKey:      make(map[string]int, len(f.Categories)),
	}
	for _, cat := range f.Categories {
		cat.Name = strings.TrimSpace(cat.Name)
		if cat.Name == "" {
			return nil, errors.New("catalog: category name must not be empty")
		}
		k := Fold(cat.Name)
		if _, dup := c.byKey[k]; dup {
			return nil, fmt.Errorf("catalog: duplicate category %q", cat.Name)
		}
		c.byKey[k] = len(c.categories)
		c.categories = append(c.categories, cat)
	}
	return c, nil
}

// Fold returns the case-folded, trimmed form of s used for comparisons.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Lookup finds a category by name, ignoring case.
func (c *Catalog) Lookup(name string) (Category, bool) {
	i, ok := c.byKey[Fold(name)]
	if !ok {
		return Category{}, false
	}
	return c.categories[i], true
}

// Canonical returns the catalog spelling of name.
func (c *Catalog) Canonical(name string) (string, bool) {
	cat, ok := c.Lookup(name)
	return cat.Name, ok
}

// Categories returns a copy of all categories in catalog order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Names returns all canonical category names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.categories))
	for i, cat := range c.categories {
		out[i] = cat.Name
	}
	return out
}

// MissingDocuments lists the required (non-optional) documents of category
// that are absent from submitted. Document names compare case-insensitively.
func (c *Catalog) MissingDocuments(category string, submitted []string) []string {
	cat, ok := c.Lookup(category)
	if !ok {
		return nil
	}
	have := make(map[string]struct{}, len(submitted))
	for _, s := range submitted {
		have[Fold(s)] = struct{}{}
	}
	var missing []string
	for _, d := range cat.Documents {
		if d.Optional {
			continue
		}
		if _, ok := have[Fold(d.Name)]; !ok {
			missing = append(missing, d.Name)
		}
	}
	return missing
}
