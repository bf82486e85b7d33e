package config

import (
	"maps"
	"net/url"
	"path/filepath"
	"strings"
)

// SiteConfig holds per-host crawl settings from the YAML file.
type SiteConfig struct {
	// Cookie is sent with every request to the host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers sent with every request to the host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides MaxDepth for the host when non-zero.
	Depth int `yaml:"depth,omitempty"`

	// IgnorePatterns are glob patterns of page paths never crawled.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns restrict crawling to matching page paths when set.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// URLFilter overrides the image URL regular expression for the host.
	URLFilter string `yaml:"urlFilter,omitempty"`
}

// File is the parsed .imgscrape configuration file.
type File struct {
	// Sites maps a host (e.g. "example.com" or "example.com:8080") to its
	// settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every host unless overridden in Sites.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the settings for host merged over the defaults.
// Host matching is case-insensitive; a bare hostname entry also matches the
// same host with a port.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}
	result := cf.Defaults
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = maps.Clone(cf.Defaults.Headers)
	}

	site, ok := cf.lookup(host)
	if !ok {
		return result
	}

	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if site.Depth != 0 {
		result.Depth = site.Depth
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(site.Headers))
		}
		maps.Copy(result.Headers, site.Headers)
	}
	if len(site.IgnorePatterns) > 0 {
		result.IgnorePatterns = site.IgnorePatterns
	}
	if len(site.FollowPatterns) > 0 {
		result.FollowPatterns = site.FollowPatterns
	}
	if site.URLFilter != "" {
		result.URLFilter = site.URLFilter
	}
	return result
}

func (cf *File) lookup(host string) (SiteConfig, bool) {
	host = strings.ToLower(host)
	for key, sc := range cf.Sites {
		if strings.EqualFold(key, host) {
			return sc, true
		}
	}
	if i := strings.LastIndex(host, ":"); i > 0 {
		bare := host[:i]
		for key, sc := range cf.Sites {
			if strings.EqualFold(key, bare) {
				return sc, true
			}
		}
	}
	return SiteConfig{}, false
}

// ShouldFollow reports whether a page URL passes the ignore and follow
// patterns. Ignore patterns win over follow patterns; with no follow
// patterns every non-ignored path is followed.
func (sc SiteConfig) ShouldFollow(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range sc.IgnorePatterns {
		if MatchPattern(pattern, path) {
			return false
		}
	}
	if len(sc.FollowPatterns) == 0 {
		return true
	}
	for _, pattern := range sc.FollowPatterns {
		if MatchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// MatchPattern reports whether path matches a glob pattern.
//
//   - "/admin/*" matches "/admin" and anything below it
//   - "*.pdf" matches any path ending in ".pdf"
//   - other patterns use filepath.Match, and patterns without a slash are
//     also tried against the last path element
func MatchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	if ext, ok := strings.CutPrefix(pattern, "*."); ok && strings.HasSuffix(path, "."+ext) {
		return true
	}
	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}
	return false
}
