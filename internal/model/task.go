package model

import (
	"net/url"
	"strings"
)

// CrawlTask is one frontier entry: a page URL and its link distance from the
// root page.
type CrawlTask struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// ImageCandidate is an image URL discovered on a page and not yet
// validated or downloaded.
type ImageCandidate struct {
	URL           string `json:"url"`
	SourcePageURL string `json:"sourcePageUrl"`
}

// NormalizeURL reduces a page URL to scheme, host, path and query so that
// equivalent links collapse into one visited-set entry. Scheme and host are
// lower-cased, the fragment and userinfo are dropped and an empty path
// becomes "/". Unparseable input is returned unchanged.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	n := url.URL{
		Scheme:   strings.ToLower(u.Scheme),
		Host:     strings.ToLower(u.Host),
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
	}
	if n.Path == "" {
		n.Path = "/"
		n.RawPath = ""
	}
	return n.String()
}
