// Package transport builds the *http.Client shared by every request of a
// crawl run: optional SOCKS5 proxy, public-suffix aware cookie jar, bounded
// redirects, and per-host cookies and headers from the site configuration.
// In stealth mode each request carries a randomly chosen browser identity.
package transport
