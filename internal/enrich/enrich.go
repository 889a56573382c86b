// Package enrich fetches titles and favicons for domains in the store.
//
// Each pending domain moves through Pending, Fetching, Succeeded or Failed,
// and finally Checked. Only the terminal checked flag is persisted; the
// result of every attempt is committed in its own transaction before the
// next domain starts, so an interrupted run never leaves partial state.
package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/idna"
	"golang.org/x/time/rate"

	"github.com/runnerr0/historyview/internal/config"
	"github.com/runnerr0/historyview/internal/logging"
	"github.com/runnerr0/historyview/internal/storage"
)

// Store is the subset of the store the enricher uses.
type Store interface {
	PendingEnrichment(ctx context.Context, q storage.PendingQuery) ([]string, error)
	ApplyEnrichment(ctx context.Context, res storage.EnrichmentResult) error
}

// Options configures an Enricher. Zero values fall back to the defaults
// noted on each field.
type Options struct {
	Client       *http.Client  // default: a new client
	Timeout      time.Duration // per request; default 10s
	Delay        time.Duration // minimum gap between requests; 0 disables
	MaxRedirects int           // default 5
	MaxBodyBytes int64         // default 2 MiB
	UserAgent    string
	// BaseURL maps a domain to the page to fetch; default "https://<domain>/".
	BaseURL func(domain string) string
	Now     func() time.Time
	Logger  *slog.Logger
}

// RunOptions controls one Run.
type RunOptions struct {
	DryRun bool
	// Limit bounds the number of domains processed; blocked domains do not
	// count. Zero means no limit.
	Limit int
	// RetryMissing also selects checked domains that have no favicon.
	RetryMissing bool
}

// Stats summarizes a Run. Every processed domain ends up either Updated
// (favicon stored) or Missing (checked without one); Failed counts the
// Missing domains whose page could not be fetched.
type Stats struct {
	Processed int
	Updated   int
	Missing   int
	Failed    int
	Blocked   int
}

func (s Stats) String() string {
	return fmt.Sprintf("processed %d, updated %d, missing %d, failed %d, blocked %d",
		s.Processed, s.Updated, s.Missing, s.Failed, s.Blocked)
}

// Enricher runs the per-domain state machine.
type Enricher struct {
	store     Store
	blocklist *config.Blocklist
	client    *http.Client
	limiter   *rate.Limiter
	opts      Options
	logger    *slog.Logger
}

// New creates an Enricher. Requests are serialized behind a limiter with a
// burst of one so consecutive requests are at least opts.Delay apart.
func New(store Store, blocklist *config.Blocklist, opts Options) *Enricher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 5
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 << 20
	}
	if opts.BaseURL == nil {
		opts.BaseURL = func(domain string) string { return "https://" + domain + "/" }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	client := &http.Client{}
	if opts.Client != nil {
		c := *opts.Client
		client = &c
	}
	maxRedirects := opts.MaxRedirects
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}

	return &Enricher{
		store:     store,
		blocklist: blocklist,
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		opts:      opts,
		logger:    logging.OrDiscard(opts.Logger).With("component", logging.ComponentEnrich),
	}
}

// attempt tracks one domain through the state machine.
type attempt struct {
	domain string
	state  State
	logger *slog.Logger
}

func (a *attempt) to(next State, args ...any) {
	if !CanTransition(a.state, next) {
		panic(fmt.Sprintf("enrich: illegal transition %s -> %s for %s", a.state, next, a.domain))
	}
	a.logger.Debug("state", append([]any{"from", a.state.String(), "to", next.String()}, args...)...)
	a.state = next
}

// Run enriches pending domains in order until the list, the limit or the
// context runs out. A cancelled context stops the run after the current
// domain's commit; store failures abort it. Network failures never do.
func (e *Enricher) Run(ctx context.Context, opts RunOptions) (Stats, error) {
	var stats Stats

	domains, err := e.store.PendingEnrichment(ctx, storage.PendingQuery{IncludeMissingFavicons: opts.RetryMissing})
	if err != nil {
		return stats, fmt.Errorf("listing pending domains: %w", err)
	}
	e.logger.Info("enrichment started", "pending", len(domains), "dry_run", opts.DryRun, "limit", opts.Limit)

	for _, domain := range domains {
		if opts.Limit > 0 && stats.Processed >= opts.Limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if e.blocklist.Match(domain) {
			stats.Blocked++
			e.logger.Debug("blocked", "domain", domain)
			continue
		}

		if opts.DryRun {
			stats.Processed++
			e.logger.Info("would fetch", "domain", domain, "url", e.opts.BaseURL(domain))
			continue
		}

		res, err := e.enrichDomain(ctx, domain)
		if err != nil {
			// Cancelled mid-fetch: the domain stays pending.
			return stats, err
		}
		if err := e.store.ApplyEnrichment(context.WithoutCancel(ctx), res.EnrichmentResult); err != nil {
			return stats, fmt.Errorf("committing %s: %w", domain, err)
		}
		res.attempt.to(StateChecked)
		stats.Processed++

		switch {
		case len(res.FaviconData) > 0:
			stats.Updated++
			e.logger.Info("favicon stored", "domain", domain, "type", res.FaviconType, "bytes", len(res.FaviconData))
		case res.failed:
			stats.Missing++
			stats.Failed++
		default:
			stats.Missing++
			e.logger.Info("no favicon", "domain", domain)
		}
	}

	return stats, nil
}

type outcome struct {
	storage.EnrichmentResult
	attempt *attempt
	failed  bool
}

// enrichDomain fetches one domain and builds the result to commit. The only
// error it returns is context cancellation.
func (e *Enricher) enrichDomain(ctx context.Context, domain string) (outcome, error) {
	a := &attempt{domain: domain, logger: e.logger.With("domain", domain)}
	out := outcome{attempt: a, EnrichmentResult: storage.EnrichmentResult{Domain: domain}}

	host, reason := fetchHost(domain)
	if reason != "" {
		a.to(StateFailed, "reason", reason)
		out.CheckedAt = e.opts.Now()
		return out, nil
	}

	a.to(StateFetching)
	pg, err := e.fetchPage(ctx, e.opts.BaseURL(host))
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		a.to(StateFailed, "reason", err.Error())
		e.logger.Warn("fetch failed", "domain", domain, "error", err)
		out.failed = true
		out.CheckedAt = e.opts.Now()
		return out, nil
	}

	out.Title = pg.Title
	for _, c := range rankIcons(pg.Icons, pg.Base) {
		mimeType, data, err := e.loadIcon(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			e.logger.Debug("icon candidate rejected", "domain", domain, "href", truncate(c.link.Href, 120), "error", err)
			continue
		}
		out.FaviconType, out.FaviconData = mimeType, data
		break
	}

	a.to(StateSucceeded, "title", out.Title, "icons", len(pg.Icons), "favicon", out.FaviconType)
	out.CheckedAt = e.opts.Now()
	return out, nil
}

// hostProfile maps internationalized names to their ASCII form. Underscores
// are allowed; they occur in real subdomains.
var hostProfile = idna.New(idna.MapForLookup(), idna.BidiRule(), idna.StrictDomainName(false))

// fetchHost returns the ASCII form of domain to request, or a reason when
// domain is not a public hostname worth a request: IP literals, localhost,
// single-label and malformed names.
func fetchHost(domain string) (host, reason string) {
	switch {
	case net.ParseIP(domain) != nil:
		return "", "ip address"
	case domain == "localhost" || strings.HasSuffix(domain, ".localhost"):
		return "", "localhost"
	case !strings.Contains(domain, "."):
		return "", "not a fully qualified hostname"
	}
	host, err := hostProfile.ToASCII(domain)
	if err != nil {
		return "", "invalid hostname"
	}
	for _, r := range host {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '.' || r == '_') {
			return "", "invalid hostname"
		}
	}
	return host, ""
}

func (e *Enricher) fetchPage(ctx context.Context, pageURL string) (page, error) {
	body, _, finalURL, err := e.get(ctx, pageURL, "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5", true)
	if err != nil {
		return page{}, err
	}
	return parsePage(bytes.NewReader(body), finalURL), nil
}

// loadIcon returns the MIME type and bytes of a candidate. Data URLs are
// decoded without any request.
func (e *Enricher) loadIcon(ctx context.Context, c candidate) (string, []byte, error) {
	if c.data != nil {
		mt := iconMIME(c.data.MediaType, c.link.Type, "", c.data.Data)
		if mt == "" {
			return "", nil, fmt.Errorf("data URL is not an image (%q)", c.data.MediaType)
		}
		return mt, c.data.Data, nil
	}

	body, contentType, _, err := e.get(ctx, c.url.String(), "image/*,*/*;q=0.5", false)
	if err != nil {
		return "", nil, err
	}
	if len(body) == 0 {
		return "", nil, errors.New("empty icon")
	}
	declared := c.link.Type
	if c.kind == kindSVG && declared == "" {
		declared = mimeSVG
	}
	mt := iconMIME(contentType, declared, c.url.Path, body)
	if mt == "" {
		return "", nil, fmt.Errorf("response is not an image (%q)", contentType)
	}
	return mt, body, nil
}

// get performs one rate-limited GET bounded by the request timeout. A body
// over MaxBodyBytes is cut when allowTruncate is set and an error otherwise.
func (e *Enricher) get(ctx context.Context, rawURL, accept string, allowTruncate bool) ([]byte, string, *url.URL, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, "", nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if e.opts.UserAgent != "" {
		req.Header.Set("User-Agent", e.opts.UserAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return nil, "", nil, fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, "", nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if int64(len(body)) > e.opts.MaxBodyBytes {
		if !allowTruncate {
			return nil, "", nil, fmt.Errorf("GET %s: body exceeds %d bytes", rawURL, e.opts.MaxBodyBytes)
		}
		body = body[:e.opts.MaxBodyBytes]
	}
	return body, resp.Header.Get("Content-Type"), resp.Request.URL, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
