package robots

import (
	"bufio"
	"io"
	"strings"
)

// Rules are the Disallow prefixes that apply to every user agent, plus any
// Sitemap directives found in the file.
type Rules struct {
	disallow []string
	sitemaps []string
}

// ParseRules reads a robots.txt document. A group of consecutive
// User-agent lines applies when any of its values is "*" or contains "*".
// Disallow values of applying groups are recorded lower-cased; empty
// Disallow values and comments are ignored. Unreadable input yields the
// rules parsed so far.
func ParseRules(r io.Reader) *Rules {
	rules := &Rules{}
	applies := false
	inAgents := false

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			match := value == "*" || strings.Contains(value, "*")
			if inAgents {
				applies = applies || match
			} else {
				applies = match
			}
			inAgents = true
		case "disallow":
			inAgents = false
			if applies && value != "" {
				rules.disallow = append(rules.disallow, strings.ToLower(value))
			}
		case "sitemap":
			// Sitemap lines are not bound to a group; the value may itself
			// contain ':' which Cut leaves in place.
			if value != "" {
				rules.sitemaps = append(rules.sitemaps, value)
			}
		default:
			inAgents = false
		}
	}
	return rules
}

// Allowed reports whether path (with optional query) is not under any
// disallowed prefix. Comparison is case-insensitive.
func (r *Rules) Allowed(path string) bool {
	if r == nil {
		return true
	}
	if path == "" {
		path = "/"
	}
	lower := strings.ToLower(path)
	for _, prefix := range r.disallow {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

// Disallowed returns the recorded prefixes.
func (r *Rules) Disallowed() []string {
	return append([]string(nil), r.disallow...)
}

// Sitemaps returns the Sitemap directive values in file order.
func (r *Rules) Sitemaps() []string {
	return append([]string(nil), r.sitemaps...)
}
