// Package loader drives normalized history records into the store.
package loader

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/runnerr0/historyview/internal/config"
	"github.com/runnerr0/historyview/internal/logging"
	"github.com/runnerr0/historyview/internal/normalize"
	"github.com/runnerr0/historyview/internal/storage"
)

// Store is the subset of the store the loader writes through. Dry runs use
// only the read methods.
type Store interface {
	UpsertVisit(ctx context.Context, in storage.VisitInput) (storage.UpsertResult, error)
	GetDomain(ctx context.Context, domain string) (*storage.Domain, error)
	HasVisit(ctx context.Context, domain string, ts time.Time) (bool, error)
}

// Options controls a single Load call.
type Options struct {
	DryRun bool
	// Limit bounds the number of records processed, blocked ones included.
	// Zero means no limit.
	Limit int
}

// Stats summarizes a Load call.
type Stats struct {
	Processed  int
	Inserted   int
	Duplicates int
	NewDomains int
	Blocked    int
	Errors     int
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Processed += other.Processed
	s.Inserted += other.Inserted
	s.Duplicates += other.Duplicates
	s.NewDomains += other.NewDomains
	s.Blocked += other.Blocked
	s.Errors += other.Errors
}

func (s Stats) String() string {
	return fmt.Sprintf("processed %d, inserted %d, duplicates %d, new domains %d, blocked %d, errors %d",
		s.Processed, s.Inserted, s.Duplicates, s.NewDomains, s.Blocked, s.Errors)
}

// Loader applies the blocklist and writes visits one transaction at a time.
// Dry-run Load calls on one Loader share their would-be writes, so a
// multi-file dry run reports what the same files would do in a real run.
type Loader struct {
	store     Store
	blocklist *config.Blocklist
	logger    *slog.Logger
	dry       *dryRun
}

// New creates a Loader. A nil blocklist blocks nothing.
func New(store Store, blocklist *config.Blocklist, logger *slog.Logger) *Loader {
	return &Loader{
		store:     store,
		blocklist: blocklist,
		logger:    logging.OrDiscard(logger).With("component", logging.ComponentLoader),
		dry:       newDryRun(),
	}
}

// Load consumes records in order. It stops pulling from records once
// opts.Limit have been processed. A store failure aborts the run; the
// returned stats describe everything committed before it.
func (l *Loader) Load(ctx context.Context, records iter.Seq[normalize.Record], opts Options) (Stats, error) {
	var stats Stats
	for rec := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := l.loadOne(ctx, rec, opts, &stats); err != nil {
			return stats, err
		}
		if opts.Limit > 0 && stats.Processed >= opts.Limit {
			break
		}
	}
	return stats, nil
}

func (l *Loader) loadOne(ctx context.Context, rec normalize.Record, opts Options, stats *Stats) error {
	stats.Processed++

	if l.blocklist.Match(rec.Domain) {
		stats.Blocked++
		l.logger.Debug("blocked", "domain", rec.Domain)
		return nil
	}

	var (
		res storage.UpsertResult
		err error
	)
	if opts.DryRun {
		res, err = l.dry.evaluate(ctx, l.store, rec)
	} else {
		res, err = l.store.UpsertVisit(ctx, storage.VisitInput{
			Domain:    rec.Domain,
			Timestamp: rec.Timestamp,
			Title:     rec.Title,
		})
	}
	if err != nil {
		stats.Errors++
		return fmt.Errorf("record %d (%s @ %s): %w",
			stats.Processed, rec.Domain, rec.Timestamp.Format(storage.TimestampLayout), err)
	}

	if res.NewDomain {
		stats.NewDomains++
	}
	if !res.Inserted {
		stats.Duplicates++
		l.logger.Debug("duplicate visit", "domain", rec.Domain, "timestamp", rec.Timestamp, "dry_run", opts.DryRun)
		return nil
	}
	stats.Inserted++
	l.logger.Debug("visit", "domain", rec.Domain, "timestamp", rec.Timestamp,
		"new_domain", res.NewDomain, "dry_run", opts.DryRun)
	return nil
}

type visitKey struct {
	domain string
	ts     int64
}

// dryRun answers "what would UpsertVisit do" from read-only lookups plus
// the would-be writes of earlier dry-run records on the same Loader.
type dryRun struct {
	domains map[string]struct{}
	visits  map[visitKey]struct{}
}

func newDryRun() *dryRun {
	return &dryRun{
		domains: make(map[string]struct{}),
		visits:  make(map[visitKey]struct{}),
	}
}

func (d *dryRun) evaluate(ctx context.Context, store Store, rec normalize.Record) (storage.UpsertResult, error) {
	var res storage.UpsertResult

	if _, seen := d.domains[rec.Domain]; !seen {
		_, err := store.GetDomain(ctx, rec.Domain)
		switch {
		case errors.Is(err, storage.ErrDomainNotFound):
			res.NewDomain = true
		case err != nil:
			return res, err
		}
		d.domains[rec.Domain] = struct{}{}
	}

	key := visitKey{rec.Domain, rec.Timestamp.Unix()}
	if _, seen := d.visits[key]; seen {
		return res, nil
	}
	d.visits[key] = struct{}{}

	if !res.NewDomain {
		exists, err := store.HasVisit(ctx, rec.Domain, rec.Timestamp)
		if err != nil {
			return res, err
		}
		if exists {
			return res, nil
		}
	}
	res.Inserted = true
	return res, nil
}
