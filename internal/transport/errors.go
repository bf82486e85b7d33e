package transport

import "errors"

// Proxy errors.
var (
	// ErrInvalidProxyAddress is returned when the proxy is neither "host:port"
	// nor a socks5:// URL.
	ErrInvalidProxyAddress = errors.New("invalid proxy address: expected host:port or socks5://[user:pass@]host:port")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// can be established.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyNotSOCKS5 is returned when the proxy answers but does not speak
	// SOCKS5 or refuses every offered auth method.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyTimeout is returned when the proxy handshake times out.
	ErrProxyTimeout = errors.New("timeout connecting to proxy")
)
