package extract

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/imgscrape/internal/model"
)

// DefaultExtensions are the recognized image extensions without gif.
var DefaultExtensions = []string{"jpg", "jpeg", "png", "webp", "svg", "bmp", "ico"}

// lazyAttributes hold image URLs on lazy-loading pages.
var lazyAttributes = []string{
	"data-src",
	"data-image",
	"data-background",
	"data-thumbnail",
	"data-thumb",
	"data-lazy-src",
}

var (
	cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")\s]+)['"]?\s*\)`)
	quotedPattern = regexp.MustCompile(`(?i)["']([^"'\s<>()]+\.(?:jpe?g|png|gif|webp|svg|bmp|ico)(?:\?[^"'\s<>]*)?)["']`)
)

// Extractor finds candidate image URLs in markup.
type Extractor struct {
	extensions map[string]bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithGIF adds gif to the recognized extensions.
func WithGIF(include bool) Option {
	return func(e *Extractor) {
		if include {
			e.extensions["gif"] = true
		} else {
			delete(e.extensions, "gif")
		}
	}
}

// New returns an Extractor recognizing DefaultExtensions.
func New(opts ...Option) *Extractor {
	e := &Extractor{extensions: make(map[string]bool, len(DefaultExtensions)+1)}
	for _, ext := range DefaultExtensions {
		e.extensions[ext] = true
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the de-duplicated absolute image URLs found in markup, in
// discovery order. Relative references resolve against pageURL.
func (e *Extractor) Extract(markup, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	c := &collector{extractor: e, base: base, seen: make(map[string]bool)}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err == nil {
		if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
			if b, err := url.Parse(strings.TrimSpace(href)); err == nil {
				c.base = base.ResolveReference(b)
			}
		}
		e.fromImages(doc, c)
		e.fromPictures(doc, c)
		e.fromInlineStyles(doc, c)
		e.fromLazyAttributes(doc, c)
		e.fromPosters(doc, c)
		e.fromMeta(doc, c)
	}
	e.fromRawText(markup, c)

	return c.urls
}

// Candidates wraps Extract results as ImageCandidates of pageURL.
func (e *Extractor) Candidates(markup, pageURL string) []model.ImageCandidate {
	urls := e.Extract(markup, pageURL)
	out := make([]model.ImageCandidate, len(urls))
	for i, u := range urls {
		out[i] = model.ImageCandidate{URL: u, SourcePageURL: pageURL}
	}
	return out
}

func (e *Extractor) fromImages(doc *goquery.Document, c *collector) {
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			c.add(src)
		}
		if set, ok := s.Attr("srcset"); ok {
			c.addAll(ParseSrcset(set))
		}
	})
}

func (e *Extractor) fromPictures(doc *goquery.Document, c *collector) {
	doc.Find("picture").Each(func(_ int, p *goquery.Selection) {
		p.Find("source").Each(func(_ int, s *goquery.Selection) {
			if set, ok := s.Attr("srcset"); ok {
				c.addAll(ParseSrcset(set))
			}
			if src, ok := s.Attr("src"); ok {
				c.add(src)
			}
		})
		p.Find("img").Each(func(_ int, s *goquery.Selection) {
			if src, ok := s.Attr("src"); ok {
				c.add(src)
			}
		})
	})
}

func (e *Extractor) fromInlineStyles(doc *goquery.Document, c *collector) {
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		for _, m := range cssURLPattern.FindAllStringSubmatch(style, -1) {
			c.add(m[1])
		}
	})
}

func (e *Extractor) fromLazyAttributes(doc *goquery.Document, c *collector) {
	for _, attr := range lazyAttributes {
		doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			v, _ := s.Attr(attr)
			// Some lazy loaders store a srcset in data-src.
			if strings.Contains(v, ",") {
				c.addAll(ParseSrcset(v))
				return
			}
			c.add(v)
		})
	}
}

func (e *Extractor) fromPosters(doc *goquery.Document, c *collector) {
	doc.Find("[poster]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("poster")
		c.add(v)
	})
}

func (e *Extractor) fromMeta(doc *goquery.Document, c *collector) {
	doc.Find(`meta[property="og:image"], meta[name="twitter:image"], link[rel="image_src"]`).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("content"); ok {
			c.add(v)
		}
		if v, ok := s.Attr("href"); ok {
			c.add(v)
		}
	})
}

func (e *Extractor) fromRawText(markup string, c *collector) {
	text := strings.ReplaceAll(markup, `\/`, `/`)
	for _, m := range cssURLPattern.FindAllStringSubmatch(text, -1) {
		c.add(m[1])
	}
	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		c.add(m[1])
	}
}

// ParseSrcset returns the URLs of a srcset value, dropping width and
// density descriptors.
func ParseSrcset(srcset string) []string {
	var out []string
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(part)
		if len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

// Valid reports whether raw, resolved against base, is an http(s) URL whose
// path ends in a recognized extension. It returns the resolved URL.
func (e *Extractor) Valid(raw string, base *url.URL) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(strings.ToLower(raw), "data:") {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	if !e.extensions[ext] {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

type collector struct {
	extractor *Extractor
	base      *url.URL
	seen      map[string]bool
	urls      []string
}

func (c *collector) add(raw string) {
	u, ok := c.extractor.Valid(raw, c.base)
	if !ok || c.seen[u] {
		return
	}
	c.seen[u] = true
	c.urls = append(c.urls, u)
}

func (c *collector) addAll(raws []string) {
	for _, r := range raws {
		c.add(r)
	}
}
