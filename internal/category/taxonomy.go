// Package category resolves domains to curated category tags.
//
// The taxonomy and the domain map are read once per run into immutable
// values; nothing here writes to the store.
package category

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidTaxonomy is returned when categories.yaml is unreadable or
	// malformed.
	ErrInvalidTaxonomy = errors.New("invalid taxonomy")

	// ErrUnknownTag is returned when the domain map names a tag the
	// taxonomy does not define.
	ErrUnknownTag = errors.New("unknown category tag")
)

// TypePrimary marks top-level categories in categories.yaml.
const TypePrimary = "primary"

// Category is one taxonomy entry.
type Category struct {
	Tag   string `yaml:"tag"`
	Label string `yaml:"label"`
	Type  string `yaml:"type,omitempty"`
}

// Primary reports whether the category is a top-level one.
func (c Category) Primary() bool { return c.Type == TypePrimary }

// Taxonomy is the ordered category list keyed by normalized tag.
type Taxonomy struct {
	order []string
	byTag map[string]Category
}

// NormalizeTag lowercases a tag and gives it a single leading "#". Blank
// input yields "".
func NormalizeTag(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.TrimLeft(t, "#")
	if t == "" {
		return ""
	}
	return "#" + t
}

// NewTaxonomy builds a taxonomy from categories in file order. Entries with
// a blank tag are dropped; a repeated tag keeps its first position and last
// definition.
func NewTaxonomy(cats []Category) *Taxonomy {
	t := &Taxonomy{byTag: make(map[string]Category, len(cats))}
	for _, c := range cats {
		c.Tag = NormalizeTag(c.Tag)
		if c.Tag == "" {
			continue
		}
		c.Label = strings.TrimSpace(c.Label)
		if c.Label == "" {
			c.Label = c.Tag[1:]
		}
		c.Type = strings.ToLower(strings.TrimSpace(c.Type))
		if _, dup := t.byTag[c.Tag]; !dup {
			t.order = append(t.order, c.Tag)
		}
		t.byTag[c.Tag] = c
	}
	return t
}

// LoadTaxonomy reads categories.yaml: a top-level "categories" list of
// {tag, label, type}. A missing or malformed file is a configuration error.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTaxonomy, err)
	}

	var doc struct {
		Categories *[]Category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrInvalidTaxonomy, path, err)
	}
	if doc.Categories == nil {
		return nil, fmt.Errorf("%w: %s must contain a top-level \"categories\" list", ErrInvalidTaxonomy, path)
	}
	return NewTaxonomy(*doc.Categories), nil
}

// Lookup returns the category for tag.
func (t *Taxonomy) Lookup(tag string) (Category, bool) {
	c, ok := t.byTag[NormalizeTag(tag)]
	return c, ok
}

// Categories returns all categories in file order.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, 0, len(t.order))
	for _, tag := range t.order {
		out = append(out, t.byTag[tag])
	}
	return out
}

// Len returns the number of categories.
func (t *Taxonomy) Len() int { return len(t.order) }
