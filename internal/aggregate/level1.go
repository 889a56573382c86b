package aggregate

import (
	"sort"

	"github.com/runnerr0/historyview/internal/storage"
)

// Site is one domain within a level1 bucket.
type Site struct {
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	Domain          string   `json:"domain"`
	Value           int      `json:"value"`
	FaviconSymbolID string   `json:"favicon_symbol_id,omitempty"`
	SecondaryTags   []string `json:"secondary_tags,omitempty"`
}

// CategoryGroup sums the sites of one primary category.
type CategoryGroup struct {
	Tag   string `json:"tag"`
	Label string `json:"label"`
	Value int    `json:"value"`
	Sites []Site `json:"sites"`
}

// Level1Document is the drill-down file for one bucket.
type Level1Document struct {
	Day           int             `json:"day"`
	Hour          int             `json:"hour"`
	Categories    []CategoryGroup `json:"categories"`
	Uncategorized []Site          `json:"uncategorized"`
	Sprite        string          `json:"sprite,omitempty"`
}

// buildLevel1 groups the bucket's domains by primary category. Sites are
// ordered by value descending then domain; categories by value descending
// then tag. Domains without a primary category go to Uncategorized.
func (a *Aggregator) buildLevel1(b *bucket, meta map[string]storage.DomainMeta, spriteRef string) Level1Document {
	doc := Level1Document{
		Day:           b.Day,
		Hour:          b.Hour,
		Categories:    []CategoryGroup{},
		Uncategorized: []Site{},
		Sprite:        spriteRef,
	}

	groups := make(map[string]*CategoryGroup)
	for _, domain := range rankDomains(b.PerDomain) {
		m := meta[domain]
		res := a.resolver.Resolve(domain, m.MainCategory)

		site := Site{
			Title:         m.Title,
			URL:           "https://" + domain + "/",
			Domain:        domain,
			Value:         b.PerDomain[domain],
			SecondaryTags: res.Secondary,
		}
		if site.Title == "" {
			site.Title = domain
		}
		if len(m.FaviconData) > 0 {
			site.FaviconSymbolID = SymbolID(domain)
		}

		if res.Primary == "" {
			doc.Uncategorized = append(doc.Uncategorized, site)
			continue
		}
		g, ok := groups[res.Primary]
		if !ok {
			g = &CategoryGroup{Tag: res.Primary, Label: a.resolver.Label(res.Primary)}
			groups[res.Primary] = g
		}
		g.Value += site.Value
		g.Sites = append(g.Sites, site)
	}

	for _, g := range groups {
		doc.Categories = append(doc.Categories, *g)
	}
	sort.Slice(doc.Categories, func(i, j int) bool {
		ci, cj := doc.Categories[i], doc.Categories[j]
		if ci.Value != cj.Value {
			return ci.Value > cj.Value
		}
		return ci.Tag < cj.Tag
	})
	return doc
}

// rankDomains returns the keys of counts by count descending, then domain.
func rankDomains(counts map[string]int) []string {
	domains := make([]string, 0, len(counts))
	for d := range counts {
		domains = append(domains, d)
	}
	sort.Slice(domains, func(i, j int) bool {
		ci, cj := counts[domains[i]], counts[domains[j]]
		if ci != cj {
			return ci > cj
		}
		return domains[i] < domains[j]
	})
	return domains
}
