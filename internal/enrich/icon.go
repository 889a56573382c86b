package enrich

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"mime"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
)

const mimeSVG = "image/svg+xml"

type iconKind int

// Lower kinds are tried first.
const (
	kindSVG iconKind = iota
	kindData
	kindBitmap
)

// candidate is an icon link resolved against the page.
type candidate struct {
	link iconLink
	kind iconKind
	size int
	// exactly one of these is set
	data *dataURL
	url  *url.URL
}

// rankIcons resolves links against base and orders them: SVG icons first,
// then data URLs, then bitmaps by largest declared size. Ties keep document
// order. Links that resolve to neither http(s) nor a data URL are dropped.
func rankIcons(links []iconLink, base *url.URL) []candidate {
	var out []candidate
	for _, l := range links {
		c := candidate{link: l, size: declaredSize(l.Sizes)}

		if strings.HasPrefix(strings.ToLower(l.Href), "data:") {
			d, err := parseDataURL(l.Href)
			if err != nil {
				continue
			}
			if d.MediaType == "" {
				d.MediaType = l.Type
			}
			c.data = &d
			c.kind = kindData
			if d.MediaType == mimeSVG {
				c.kind = kindSVG
			}
			out = append(out, c)
			continue
		}

		ref, err := url.Parse(l.Href)
		if err != nil {
			continue
		}
		u := base.ResolveReference(ref)
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		c.url = u
		c.kind = kindBitmap
		if l.Type == mimeSVG || strings.EqualFold(path.Ext(u.Path), ".svg") {
			c.kind = kindSVG
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].kind != out[j].kind {
			return out[i].kind < out[j].kind
		}
		return out[i].size > out[j].size
	})
	return out
}

// declaredSize returns the largest side among a sizes attribute such as
// "16x16 32x32". "any" ranks above every fixed size; missing or invalid
// values rank lowest.
func declaredSize(sizes string) int {
	best := 0
	for _, s := range strings.Fields(strings.ToLower(sizes)) {
		if s == "any" {
			return math.MaxInt32
		}
		w, h, ok := strings.Cut(s, "x")
		if !ok {
			continue
		}
		wi, err1 := strconv.Atoi(w)
		hi, err2 := strconv.Atoi(h)
		if err1 != nil || err2 != nil {
			continue
		}
		best = max(best, wi, hi)
	}
	return best
}

// dataURL is a decoded RFC 2397 data URL.
type dataURL struct {
	MediaType string
	Data      []byte
}

var errNotDataURL = errors.New("not a data URL")

// parseDataURL decodes "data:[<mediatype>][;base64],<data>". The media type
// is lowercased and stripped of parameters.
func parseDataURL(raw string) (dataURL, error) {
	if len(raw) < 5 || !strings.EqualFold(raw[:5], "data:") {
		return dataURL{}, errNotDataURL
	}
	meta, payload, ok := strings.Cut(raw[5:], ",")
	if !ok {
		return dataURL{}, fmt.Errorf("data URL has no payload separator")
	}

	isBase64 := false
	params := strings.Split(meta, ";")
	if n := len(params); n > 0 && strings.EqualFold(strings.TrimSpace(params[n-1]), "base64") {
		isBase64 = true
		params = params[:n-1]
	}

	d := dataURL{MediaType: strings.ToLower(strings.TrimSpace(params[0]))}
	if isBase64 {
		b, err := decodeBase64(payload)
		if err != nil {
			return dataURL{}, fmt.Errorf("data URL payload: %w", err)
		}
		d.Data = b
	} else {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return dataURL{}, fmt.Errorf("data URL payload: %w", err)
		}
		d.Data = []byte(s)
	}
	if len(d.Data) == 0 {
		return dataURL{}, fmt.Errorf("data URL payload is empty")
	}
	return d, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
	if unescaped, err := url.PathUnescape(s); err == nil {
		s = unescaped
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("invalid base64")
}

// iconMIME picks the MIME type for icon bytes: the declared content type
// when it names an image, else sniffing, else the link's type attribute.
// It returns "" when the bytes are not an image, e.g. an HTML error page
// served with status 200.
func iconMIME(header, declared, urlPath string, body []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil {
		if strings.HasPrefix(mt, "image/") {
			return mt
		}
		if mt == "text/html" {
			return ""
		}
	}
	if looksLikeSVG(body) {
		return mimeSVG
	}
	if looksLikeHTML(body) {
		return ""
	}
	if sniffed := http.DetectContentType(body); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	if strings.EqualFold(path.Ext(urlPath), ".ico") {
		return "image/x-icon"
	}
	return ""
}

// looksLikeSVG reports whether the document element is <svg>, skipping a
// BOM, the XML declaration, comments and a doctype.
func looksLikeSVG(body []byte) bool {
	rest := bytes.TrimPrefix(body[:min(len(body), 4096)], []byte("\xef\xbb\xbf"))
	for {
		rest = bytes.TrimLeft(rest, " \t\r\n")
		var end string
		switch {
		case bytes.HasPrefix(rest, []byte("<?")):
			end = "?>"
		case bytes.HasPrefix(rest, []byte("<!--")):
			end = "-->"
		case bytes.HasPrefix(rest, []byte("<!")):
			end = ">"
		default:
			return len(rest) >= 4 && bytes.EqualFold(rest[:4], []byte("<svg"))
		}
		i := bytes.Index(rest, []byte(end))
		if i < 0 {
			return false
		}
		rest = rest[i+len(end):]
	}
}

func looksLikeHTML(body []byte) bool {
	return strings.HasPrefix(http.DetectContentType(body), "text/html")
}
