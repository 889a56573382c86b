package aggregate

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"image"
	"log/slog"
	"sort"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/runnerr0/historyview/internal/storage"
)

// SymbolID returns the sprite symbol id for domain. The readable part is
// the domain with every run of non-alphanumerics collapsed to "-"; the hash
// suffix keeps domains such as a-b.com and a.b.com apart.
func SymbolID(domain string) string {
	domain = strings.ToLower(domain)

	var b strings.Builder
	dash := false
	for _, r := range domain {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	readable := strings.TrimSuffix(b.String(), "-")

	h := fnv.New32a()
	h.Write([]byte(domain)) //nolint:errcheck
	if readable == "" {
		return fmt.Sprintf("fav-%08x", h.Sum32())
	}
	return fmt.Sprintf("fav-%s-%08x", readable, h.Sum32())
}

type symbol struct {
	ID   string
	MIME string
	Data []byte
}

// buildSymbols returns one symbol per bucket domain that has favicon data,
// ordered by domain.
func buildSymbols(b *bucket, meta map[string]storage.DomainMeta, icons *iconCache) []symbol {
	domains := make([]string, 0, len(b.PerDomain))
	for d := range b.PerDomain {
		if len(meta[d].FaviconData) > 0 {
			domains = append(domains, d)
		}
	}
	sort.Strings(domains)

	out := make([]symbol, 0, len(domains))
	for _, d := range domains {
		mimeType, data := icons.get(d, meta[d])
		out = append(out, symbol{ID: SymbolID(d), MIME: mimeType, Data: data})
	}
	return out
}

func renderSprite(symbols []symbol, size int) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="0" height="0" style="position:absolute">` + "\n")
	for _, s := range symbols {
		fmt.Fprintf(&buf, "  <symbol id=\"%s\" viewBox=\"0 0 %d %d\">\n", s.ID, size, size)
		fmt.Fprintf(&buf, "    <image href=\"data:%s;base64,%s\" width=\"%d\" height=\"%d\" preserveAspectRatio=\"xMidYMid meet\" />\n",
			s.MIME, base64.StdEncoding.EncodeToString(s.Data), size, size)
		buf.WriteString("  </symbol>\n")
	}
	buf.WriteString("</svg>\n")
	return buf.Bytes()
}

// iconCache prepares each domain's favicon once per run; a busy domain
// appears in many buckets.
type iconCache struct {
	size   int
	logger *slog.Logger
	done   map[string]symbol
}

func newIconCache(size int, logger *slog.Logger) *iconCache {
	return &iconCache{size: size, logger: logger, done: make(map[string]symbol)}
}

func (c *iconCache) get(domain string, m storage.DomainMeta) (string, []byte) {
	if s, ok := c.done[domain]; ok {
		return s.MIME, s.Data
	}
	mimeType, data := c.prepare(domain, safeMIME(m.FaviconType), m.FaviconData)
	c.done[domain] = symbol{MIME: mimeType, Data: data}
	return mimeType, data
}

// prepare downscales raster icons larger than the symbol size to PNG.
// SVG, ICO and anything that fails to decode are embedded unchanged.
func (c *iconCache) prepare(domain, mimeType string, data []byte) (string, []byte) {
	if mimeType == "image/svg+xml" || mimeType == "image/x-icon" || mimeType == "image/vnd.microsoft.icon" {
		return mimeType, data
	}

	var (
		img image.Image
		err error
	)
	if mimeType == "image/webp" {
		img, err = webp.Decode(bytes.NewReader(data))
	} else {
		img, err = imaging.Decode(bytes.NewReader(data))
	}
	if err != nil {
		c.logger.Debug("favicon embedded as stored", "domain", domain, "type", mimeType, "error", err)
		return mimeType, data
	}

	bounds := img.Bounds()
	if bounds.Dx() <= c.size && bounds.Dy() <= c.size {
		return mimeType, data
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Fit(img, c.size, c.size, imaging.Lanczos), imaging.PNG); err != nil {
		c.logger.Warn("favicon downscale failed", "domain", domain, "error", err)
		return mimeType, data
	}
	c.logger.Debug("favicon downscaled", "domain", domain,
		"from", fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()), "bytes", buf.Len())
	return "image/png", buf.Bytes()
}

// safeMIME keeps stored types from breaking out of the data URL attribute.
func safeMIME(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		return "image/png"
	}
	for _, r := range mimeType {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || strings.ContainsRune("/+.-", r)) {
			return "image/png"
		}
	}
	return mimeType
}
