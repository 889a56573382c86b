package category

import (
	"fmt"
	"sort"
	"strings"
)

// Resolution is the category outcome for one domain. Primary is "" when the
// domain is uncategorized.
type Resolution struct {
	Primary   string
	Secondary []string
}

// Resolver answers category lookups for the aggregator.
type Resolver struct {
	taxonomy *Taxonomy
	mapping  Mapping
}

// NewResolver validates every tag in mapping against taxonomy. Any unknown
// tag fails the whole run.
func NewResolver(taxonomy *Taxonomy, mapping Mapping) (*Resolver, error) {
	if taxonomy == nil {
		taxonomy = NewTaxonomy(nil)
	}

	var unknown []string
	for _, domain := range mapping.Domains() {
		a := mapping[domain]
		tags := append([]string{a.Primary}, a.Secondary...)
		for _, tag := range tags {
			if tag == "" {
				continue
			}
			if _, ok := taxonomy.Lookup(tag); !ok {
				unknown = append(unknown, fmt.Sprintf("%s (%s)", tag, domain))
			}
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, strings.Join(unknown, ", "))
	}

	return &Resolver{taxonomy: taxonomy, mapping: mapping}, nil
}

// Resolve returns the domain's categories. A domain-map primary wins over
// the store's main_category; with neither the domain is uncategorized.
// Secondary tags come only from the map, sorted and de-duplicated.
func (r *Resolver) Resolve(domain, mainCategory string) Resolution {
	a := r.mapping[strings.ToLower(domain)]
	res := Resolution{
		Primary:   a.Primary,
		Secondary: uniqueSorted(a.Secondary),
	}
	if res.Primary == "" {
		res.Primary = NormalizeTag(mainCategory)
	}
	return res
}

// Label returns the display label for tag, falling back to the tag without
// its "#".
func (r *Resolver) Label(tag string) string {
	if c, ok := r.taxonomy.Lookup(tag); ok {
		return c.Label
	}
	return strings.TrimPrefix(NormalizeTag(tag), "#")
}

func uniqueSorted(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
