package normalize

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrIgnoredScheme marks URLs that are dropped without a warning
	// (file: and mailto:).
	ErrIgnoredScheme = errors.New("ignored scheme")
	// ErrUnsupportedScheme marks URLs with any other non-http(s) scheme.
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	// ErrNoHost marks http(s) URLs without a usable host.
	ErrNoHost = errors.New("url has no host")
)

var ignoredSchemes = map[string]bool{
	"file":   true,
	"mailto": true,
}

// DomainFromURL extracts the lowercased host of an http or https URL, with
// no port, userinfo, path or query. Scheme-less input such as
// "example.com/page" is treated as http.
func DomainFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoHost
	}

	u, err := url.Parse(raw)
	if err != nil || looksSchemeless(raw, u) {
		u, err = url.Parse("http://" + raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoHost, err)
		}
	}

	scheme := strings.ToLower(u.Scheme)
	switch {
	case scheme == "http" || scheme == "https":
	case ignoredSchemes[scheme]:
		return "", ErrIgnoredScheme
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedScheme, scheme)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", ErrNoHost
	}
	return host, nil
}

// looksSchemeless reports whether url.Parse mistook a bare host (or
// host:port) for a scheme.
func looksSchemeless(raw string, u *url.URL) bool {
	if u.Scheme == "" {
		return true
	}
	if strings.Contains(raw, "://") {
		return false
	}
	if strings.Contains(u.Scheme, ".") {
		return true
	}
	// "localhost:3000/path" parses as scheme "localhost" with an opaque port.
	port, _, _ := strings.Cut(u.Opaque, "/")
	return port != "" && strings.Trim(port, "0123456789") == ""
}
