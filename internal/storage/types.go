package storage

import "time"

// TimestampLayout is the canonical text form of every stored timestamp.
// Values are always UTC.
const TimestampLayout = "2006-01-02 15:04:05"

// Visit is one row of the append-only visits log.
type Visit struct {
	ID        int64
	Domain    string
	Timestamp time.Time
}

// Domain is the per-site aggregate and its enrichment state.
type Domain struct {
	Domain         string
	Title          *string
	NumVisits      int64
	Checked        bool
	CheckTimestamp *time.Time
	FaviconType    *string
	FaviconData    []byte
	MainCategory   *string
}

// VisitInput is a normalized record ready to be written.
type VisitInput struct {
	Domain    string
	Timestamp time.Time
	Title     string
}

// UpsertResult reports what UpsertVisit changed.
type UpsertResult struct {
	VisitID   int64 // zero when the visit already existed
	Inserted  bool
	NewDomain bool
}

// EnrichmentResult is the outcome of one enrichment attempt. An empty Title
// or nil FaviconData leaves the corresponding columns untouched.
type EnrichmentResult struct {
	Domain      string
	Title       string
	FaviconType string
	FaviconData []byte
	CheckedAt   time.Time
}

// PendingQuery selects domains for the enricher.
type PendingQuery struct {
	// IncludeMissingFavicons also selects checked domains that still have
	// no favicon data.
	IncludeMissingFavicons bool
	Limit                  int // <= 0 means no limit
}

// DomainMeta is the slice of domain state the aggregator needs.
type DomainMeta struct {
	Title        string
	MainCategory string
	FaviconType  string
	FaviconData  []byte
}

// Stats holds aggregate statistics about the store.
type Stats struct {
	TotalVisits       int64
	TotalDomains      int64
	CheckedDomains    int64
	PendingDomains    int64
	WithFavicon       int64
	OldestVisit       time.Time
	NewestVisit       time.Time
	DatabaseSizeBytes int64
	TopDomains        []DomainCount
}

// DomainCount pairs a domain with its visit count.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int64  `json:"count"`
}
