package extract

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// LinkParser collects the title and anchor targets of a page.
type LinkParser struct {
	baseURL *url.URL
}

// Links is the result of LinkParser.Parse.
type Links struct {
	// Title is the text of the first <title> element.
	Title string
	// Internal are links to the base URL's host, fragments stripped, in
	// document order without duplicates.
	Internal []string
	// External are http(s) links to other hosts.
	External []string
}

// NewLinkParser returns a parser resolving relative links against baseURL.
func NewLinkParser(baseURL string) (*LinkParser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &LinkParser{baseURL: u}, nil
}

// Parse walks the document and classifies its anchors. A <base href>
// element changes the resolution base for the links after it.
func (p *LinkParser) Parse(r io.Reader) (*Links, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	res := &Links{}
	seen := make(map[string]bool)
	base := p.baseURL

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if res.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					res.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "base":
				if href := getAttr(n, "href"); href != "" {
					if b, err := url.Parse(strings.TrimSpace(href)); err == nil {
						base = p.baseURL.ResolveReference(b)
					}
				}
			case "a", "area":
				if link := resolveLink(base, getAttr(n, "href")); link != "" && !seen[link] {
					seen[link] = true
					p.classify(link, res)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return res, nil
}

func (p *LinkParser) classify(link string, res *Links) {
	u, err := url.Parse(link)
	if err != nil {
		return
	}
	if strings.EqualFold(u.Host, p.baseURL.Host) {
		res.Internal = append(res.Internal, link)
		return
	}
	res.External = append(res.External, link)
}

// resolveLink resolves href against base and drops non-navigational
// schemes, bare fragments and the fragment part of the result.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
