// Package fetch issues the HTTP GET requests of a crawl. It applies the
// request timeout, a single backoff-and-retry on HTTP 429, an optional global
// rate limit, and, for pages, charset decoding and optional substitution of
// browser-rendered markup.
package fetch
