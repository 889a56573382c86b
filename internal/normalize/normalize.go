// Package normalize turns browser history exports into a stream of
// canonical (domain, UTC timestamp, title) records.
//
// Each supported export layout is a format variant behind the same Source
// type, so adding a layout never touches the loader or the store.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/runnerr0/historyview/internal/logging"
)

// Kind names a supported export format.
type Kind string

const (
	KindChrome  Kind = "chrome"
	KindEdge    Kind = "edge"
	KindTakeout Kind = "takeout"
)

// ErrUnknownKind is returned for a source kind outside the supported set.
var ErrUnknownKind = errors.New("unknown source kind")

// Kinds lists the supported source kinds.
func Kinds() []Kind {
	return []Kind{KindChrome, KindEdge, KindTakeout}
}

// ParseKind validates a source kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w %q (want chrome, edge or takeout)", ErrUnknownKind, s)
}

// Record is one normalized visit.
type Record struct {
	Domain    string
	Timestamp time.Time // UTC, whole seconds
	Title     string
}

// Stats counts what the last pass over a Source did.
type Stats struct {
	Yielded  int
	Skipped  int
	Warnings int
}

// rawEntry is an export record before URL and timestamp normalization.
type rawEntry struct {
	URL   string
	Title string
	Time  any
	Bad   string // non-empty when the entry itself is malformed
}

// format is implemented by each export layout. The unexported method keeps
// the set closed to this package.
type format interface {
	kind() Kind
	entries(doc any) ([]rawEntry, error)
}

func formatFor(k Kind) (format, error) {
	switch k {
	case KindChrome:
		return chromeFormat{}, nil
	case KindEdge:
		return edgeFormat{}, nil
	case KindTakeout:
		return takeoutFormat{}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, k)
	}
}

// Source is a decoded export file. Records may be iterated any number of
// times; each pass starts from the first entry.
type Source struct {
	kind    Kind
	name    string
	entries []rawEntry
	logger  *slog.Logger
	stats   Stats
}

// Open reads and decodes the export at path.
func Open(kind Kind, path string, logger *slog.Logger) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s export: %w", kind, err)
	}
	return Parse(kind, bytes.NewReader(data), path, logger)
}

// Parse decodes an export from r. name only labels log lines.
func Parse(kind Kind, r io.Reader, name string, logger *slog.Logger) (*Source, error) {
	f, err := formatFor(kind)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding %s export %s: %w", kind, name, err)
	}

	entries, err := f.entries(doc)
	if err != nil {
		return nil, fmt.Errorf("%s export %s: %w", kind, name, err)
	}

	return &Source{
		kind:    f.kind(),
		name:    name,
		entries: entries,
		logger:  logging.OrDiscard(logger).With("component", logging.ComponentNormalize, "source", string(kind), "file", name),
	}, nil
}

// Kind returns the source format.
func (s *Source) Kind() Kind { return s.kind }

// Len returns the number of raw entries in the export.
func (s *Source) Len() int { return len(s.entries) }

// Stats reports counters for the most recent pass over Records.
func (s *Source) Stats() Stats { return s.stats }

// Records yields normalized records lazily. Malformed entries, unparseable
// timestamps and non-http(s) URLs are skipped; all but file: and mailto:
// URLs log one warning each.
func (s *Source) Records() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		s.stats = Stats{}
		for i, e := range s.entries {
			rec, err := s.normalizeEntry(e)
			if err != nil {
				s.stats.Skipped++
				if !errors.Is(err, ErrIgnoredScheme) {
					s.stats.Warnings++
					s.logger.Warn("skipping record", "index", i, "url", e.URL, "reason", err.Error())
				}
				continue
			}
			s.stats.Yielded++
			if !yield(rec) {
				return
			}
		}
	}
}

func (s *Source) normalizeEntry(e rawEntry) (Record, error) {
	if e.Bad != "" {
		return Record{}, errors.New(e.Bad)
	}
	if strings.TrimSpace(e.URL) == "" {
		return Record{}, errors.New("missing url")
	}
	domain, err := DomainFromURL(e.URL)
	if err != nil {
		return Record{}, err
	}
	ts, err := ParseTimestamp(e.Time)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Domain:    domain,
		Timestamp: ts,
		Title:     strings.TrimSpace(e.Title),
	}, nil
}

// listUnder returns doc itself when it is a JSON array, otherwise the first
// array found under one of keys.
func listUnder(doc any, keys ...string) ([]any, error) {
	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, k := range keys {
			if list, ok := v[k].([]any); ok {
				return list, nil
			}
		}
		return nil, fmt.Errorf("expected a list under one of %s", strings.Join(keys, ", "))
	default:
		return nil, fmt.Errorf("export must be a JSON array or object, got %T", doc)
	}
}

// toEntries maps each list element through fn, marking non-object elements
// as malformed.
func toEntries(list []any, fn func(map[string]any) rawEntry) []rawEntry {
	out := make([]rawEntry, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			out = append(out, rawEntry{Bad: fmt.Sprintf("record is %T, not an object", item)})
			continue
		}
		out = append(out, fn(obj))
	}
	return out
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// firstPresent returns the first non-null, non-empty value among keys.
func firstPresent(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}
