package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Blocklist is a set of domain suffixes. A domain matches an entry when it
// equals the entry or ends with "." + entry. It is built once per run and
// never mutated afterwards.
type Blocklist struct {
	entries map[string]struct{}
}

// NewBlocklist builds a Blocklist from raw entries. Entries are trimmed,
// lowercased, and stripped of a leading "*." or "."; blanks are ignored.
func NewBlocklist(entries []string) *Blocklist {
	b := &Blocklist{entries: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		e = strings.TrimPrefix(e, "*.")
		e = strings.TrimPrefix(e, ".")
		if e == "" {
			continue
		}
		b.entries[e] = struct{}{}
	}
	return b
}

// LoadBlocklist reads domain-blocklist.yml. The file is either a flat YAML
// list or a mapping with a "domains" list. A missing file yields an empty
// blocklist.
func LoadBlocklist(path string) (*Blocklist, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewBlocklist(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading blocklist: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing blocklist %s: %w", path, err)
	}
	if len(node.Content) == 0 {
		return NewBlocklist(nil), nil
	}

	var entries []string
	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&entries); err != nil {
			return nil, fmt.Errorf("parsing blocklist %s: %w", path, err)
		}
	case yaml.MappingNode:
		var doc struct {
			Domains []string `yaml:"domains"`
		}
		if err := root.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parsing blocklist %s: %w", path, err)
		}
		entries = doc.Domains
	default:
		return nil, fmt.Errorf("blocklist %s must be a list of domain suffixes", path)
	}

	return NewBlocklist(entries), nil
}

// Match reports whether domain is blocked. A nil Blocklist matches nothing.
func (b *Blocklist) Match(domain string) bool {
	if b == nil || len(b.entries) == 0 {
		return false
	}
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	for {
		if _, ok := b.entries[domain]; ok {
			return true
		}
		i := strings.IndexByte(domain, '.')
		if i < 0 {
			return false
		}
		domain = domain[i+1:]
	}
}

// Len returns the number of entries.
func (b *Blocklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// Entries returns the entries in sorted order.
func (b *Blocklist) Entries() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.entries))
	for e := range b.entries {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// StarterBlocklist returns the suffixes written into a fresh
// domain-blocklist.yml by "historyview init": banking, password managers,
// identity providers and health portals that have no place in a heatmap.
func StarterBlocklist() []string {
	return []string{
		// Banking & payments
		"chase.com",
		"bankofamerica.com",
		"wellsfargo.com",
		"paypal.com",
		"venmo.com",

		// Password managers
		"1password.com",
		"bitwarden.com",
		"lastpass.com",

		// Identity
		"accounts.google.com",
		"login.microsoftonline.com",
		"okta.com",

		// Health & tax
		"mychart.com",
		"irs.gov",
	}
}

// WriteStarterBlocklist writes StarterBlocklist to path unless a file is
// already there. It reports whether a file was written.
func WriteStarterBlocklist(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	var sb strings.Builder
	sb.WriteString("# Domain suffixes excluded from loading and favicon fetching.\n")
	sb.WriteString("# An entry blocks the domain itself and every subdomain.\n")
	for _, d := range StarterBlocklist() {
		sb.WriteString("- ")
		sb.WriteString(d)
		sb.WriteString("\n")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("creating blocklist directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return false, fmt.Errorf("writing blocklist: %w", err)
	}
	return true, nil
}
