package enrich

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// iconLink is one <link rel="...icon..."> found on a page.
type iconLink struct {
	Href  string
	Type  string
	Sizes string
}

// page is what enrichment needs from a fetched root document.
type page struct {
	Title string
	Icons []iconLink
	Base  *url.URL
}

// parsePage scans an HTML document for the first <title>, every icon link
// and an optional <base href>. pageURL is the final URL after redirects.
func parsePage(r io.Reader, pageURL *url.URL) page {
	p := page{Base: pageURL}
	z := html.NewTokenizer(r)

	inTitle := false
	var title strings.Builder
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if p.Title == "" && inTitle {
				p.Title = collapseSpace(title.String())
			}
			return p

		case html.TextToken:
			if inTitle {
				title.Write(z.Text())
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if inTitle && atom.Lookup(name) == atom.Title {
				inTitle = false
				if p.Title == "" {
					p.Title = collapseSpace(title.String())
				}
				title.Reset()
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch atom.Lookup(name) {
			case atom.Title:
				inTitle = p.Title == "" && tt == html.StartTagToken
			case atom.Base:
				attrs := readAttrs(z, hasAttr)
				if ref, err := url.Parse(strings.TrimSpace(attrs["href"])); err == nil && attrs["href"] != "" {
					p.Base = pageURL.ResolveReference(ref)
				}
			case atom.Link:
				attrs := readAttrs(z, hasAttr)
				if !isIconRel(attrs["rel"]) || strings.TrimSpace(attrs["href"]) == "" {
					continue
				}
				p.Icons = append(p.Icons, iconLink{
					Href:  strings.TrimSpace(attrs["href"]),
					Type:  strings.ToLower(strings.TrimSpace(attrs["type"])),
					Sizes: strings.ToLower(strings.TrimSpace(attrs["sizes"])),
				})
			}
		}
	}
}

func readAttrs(z *html.Tokenizer, more bool) map[string]string {
	attrs := make(map[string]string)
	for more {
		var k, v []byte
		k, v, more = z.TagAttr()
		attrs[strings.ToLower(string(k))] = string(v)
	}
	return attrs
}

// isIconRel matches rel values such as "icon", "shortcut icon" and
// "apple-touch-icon-precomposed".
func isIconRel(rel string) bool {
	for _, tok := range strings.Fields(strings.ToLower(rel)) {
		if strings.Contains(tok, "icon") {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
