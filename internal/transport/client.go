package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"

	"github.com/nao1215/imgscrape/internal/config"
)

const (
	maxRedirects      = 10
	checkProxyTimeout = 2 * time.Second

	socks5Version  = 0x05
	socks5AuthNone = 0x00
	socks5AuthUser = 0x02
	socks5NoAccept = 0xFF
)

// browserUserAgents are rotated in stealth mode.
var browserUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:129.0) Gecko/20100101 Firefox/129.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:129.0) Gecko/20100101 Firefox/129.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36 Edg/127.0.0.0",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.8",
	"en-US,en;q=0.7,de;q=0.3",
	"en;q=0.8,fr;q=0.5",
}

// Options configure NewHTTPClient.
type Options struct {
	// Timeout bounds each request.
	Timeout time.Duration
	// ProxyAddress is "host:port" or "socks5://[user:pass@]host:port".
	// Empty means direct connections.
	ProxyAddress string
	// UserAgent is sent when Stealth is off.
	UserAgent string
	// Stealth rotates User-Agent and Accept-Language per request.
	Stealth bool
	// Sites supplies per-host cookies and headers. May be nil.
	Sites *config.File
}

// OptionsFromConfig derives client options from a run configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Timeout:      cfg.Timeout,
		ProxyAddress: cfg.ProxyAddress,
		UserAgent:    cfg.UserAgent,
		Stealth:      cfg.Stealth,
		Sites:        cfg.SiteConfigs,
	}
}

// NewHTTPClient returns the client used for pages, images, robots.txt and
// sitemaps.
func NewHTTPClient(opts Options) (*http.Client, error) {
	base := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // stdlib guarantees the type
	base.MaxIdleConns = 64
	base.MaxIdleConnsPerHost = config.MaxConcurrency
	base.IdleConnTimeout = 30 * time.Second

	if opts.ProxyAddress != "" {
		dialer, err := newSOCKS5Dialer(opts.ProxyAddress)
		if err != nil {
			return nil, err
		}
		base.Proxy = nil
		base.DialContext = dialer.DialContext
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &http.Client{
		Transport: &headerTransport{
			base:      base,
			sites:     opts.Sites,
			userAgent: opts.UserAgent,
			stealth:   opts.Stealth,
			pick:      rand.IntN,
		},
		Timeout: opts.Timeout,
		Jar:     jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// proxyEndpoint is a parsed proxy address.
type proxyEndpoint struct {
	addr string
	auth *proxy.Auth
}

func parseProxyAddress(raw string) (proxyEndpoint, error) {
	raw = strings.TrimSpace(raw)
	var ep proxyEndpoint
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "socks5" && u.Scheme != "socks5h") {
			return ep, ErrInvalidProxyAddress
		}
		raw = u.Host
		if u.User != nil {
			pw, _ := u.User.Password()
			ep.auth = &proxy.Auth{User: u.User.Username(), Password: pw}
		}
	}
	host, port, err := net.SplitHostPort(raw)
	if err != nil || host == "" {
		return ep, ErrInvalidProxyAddress
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return ep, ErrInvalidProxyAddress
	}
	ep.addr = raw
	return ep, nil
}

func newSOCKS5Dialer(address string) (proxy.ContextDialer, error) {
	ep, err := parseProxyAddress(address)
	if err != nil {
		return nil, err
	}
	d, err := proxy.SOCKS5("tcp", ep.addr, ep.auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer does not support contexts: %w", ErrInvalidProxyAddress)
	}
	return cd, nil
}

// CheckProxy performs the SOCKS5 method negotiation with the proxy to make
// sure it is reachable and speaks SOCKS5 before a crawl starts.
func CheckProxy(ctx context.Context, address string) error {
	ep, err := parseProxyAddress(address)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", ep.addr)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrProxyTimeout
		}
		return fmt.Errorf("%w: %w", ErrProxyCannotConnect, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrProxyCannotConnect, err)
	}

	method := byte(socks5AuthNone)
	if ep.auth != nil {
		method = socks5AuthUser
	}
	if _, err := conn.Write([]byte{socks5Version, 0x01, method}); err != nil {
		return fmt.Errorf("%w: %w", ErrProxyCannotConnect, err)
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return ErrProxyTimeout
		}
		return ErrProxyNotSOCKS5
	}
	if resp[0] != socks5Version || resp[1] == socks5NoAccept || resp[1] != method {
		return ErrProxyNotSOCKS5
	}
	return nil
}

// headerTransport sets identity headers and injects per-host cookies and
// headers into every request, redirects included.
type headerTransport struct {
	base      http.RoundTripper
	sites     *config.File
	userAgent string
	stealth   bool
	pick      func(n int) int
}

// RoundTrip implements http.RoundTripper.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.stealth {
		clone.Header.Set("User-Agent", browserUserAgents[t.pick(len(browserUserAgents))])
		clone.Header.Set("Accept-Language", acceptLanguages[t.pick(len(acceptLanguages))])
		if clone.Header.Get("Referer") == "" && req.URL != nil {
			clone.Header.Set("Referer", req.URL.Scheme+"://"+req.URL.Host+"/")
		}
	} else if clone.Header.Get("User-Agent") == "" && t.userAgent != "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}

	if t.sites != nil && req.URL != nil {
		site := t.sites.GetSiteConfig(req.URL.Host)
		if site.Cookie != "" {
			if existing := clone.Header.Get("Cookie"); existing != "" {
				clone.Header.Set("Cookie", existing+"; "+site.Cookie)
			} else {
				clone.Header.Set("Cookie", site.Cookie)
			}
		}
		for k, v := range site.Headers {
			clone.Header.Set(k, v)
		}
	}

	return t.base.RoundTrip(clone)
}
