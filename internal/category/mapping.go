package category

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Assignment is the curated category of one domain.
type Assignment struct {
	Primary   string
	Secondary []string
}

// Mapping is the domain -> assignment table from domain-category-map.yaml.
type Mapping map[string]Assignment

type mappingEntry struct {
	Domain    string   `yaml:"domain"`
	Primary   string   `yaml:"primary"`
	Secondary []string `yaml:"secondary"`
}

// LoadMapping reads domain-category-map.yaml. A missing file yields an empty
// mapping. Domains are lowercased and tags normalized; entries without a
// domain are ignored.
func LoadMapping(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Mapping{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading domain map: %w", err)
	}

	var doc struct {
		Domains []mappingEntry `yaml:"domains"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing domain map %s: %w", path, err)
	}

	m := make(Mapping, len(doc.Domains))
	for _, e := range doc.Domains {
		domain := strings.ToLower(strings.TrimSpace(e.Domain))
		if domain == "" {
			continue
		}
		a := Assignment{Primary: NormalizeTag(e.Primary)}
		for _, s := range e.Secondary {
			if tag := NormalizeTag(s); tag != "" {
				a.Secondary = append(a.Secondary, tag)
			}
		}
		m[domain] = a
	}
	return m, nil
}

// Domains returns the mapped domains in sorted order.
func (m Mapping) Domains() []string {
	out := make([]string, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
