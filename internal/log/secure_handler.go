package log

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// MaskValue replaces redacted attribute values.
const MaskValue = "***REDACTED***"

// redactedKeys are attribute keys whose values are always masked.
// Site configs carry cookies and auth headers that end up in request logs.
var redactedKeys = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"api_key":             true,
	"apikey":              true,
	"session":             true,
	"session_id":          true,
	"sessionid":           true,
	"sid":                 true,
}

// redactedKeywords mask any key that contains them.
var redactedKeywords = []string{"password", "passwd", "secret", "token", "auth", "credential"}

// redactedValues mask values that look like credentials whatever their key.
var redactedValues = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`), // JWT
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),
}

// userinfoPattern finds credentials embedded in URLs, e.g. proxy addresses.
var userinfoPattern = regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://)[^/@\s]+@`)

// SecureHandler wraps an slog.Handler and masks sensitive attributes before
// they reach it.
type SecureHandler struct {
	next slog.Handler
}

// NewSecureHandler wraps next. A nil next uses slog.Default().Handler().
func NewSecureHandler(next slog.Handler) *SecureHandler {
	if next == nil {
		next = slog.Default().Handler()
	}
	return &SecureHandler{next: next}
}

// Enabled implements slog.Handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redact(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

// WithAttrs implements slog.Handler.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redact(a)
	}
	return &SecureHandler{next: h.next.WithAttrs(clean)}
}

// WithGroup implements slog.Handler.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{next: h.next.WithGroup(name)}
}

func redact(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		clean := make([]slog.Attr, len(group))
		for i, ga := range group {
			clean[i] = redact(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	}

	if isRedactedKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}

	if a.Value.Kind() == slog.KindString {
		v := a.Value.String()
		if isRedactedValue(v) {
			return slog.String(a.Key, MaskValue)
		}
		if userinfoPattern.MatchString(v) {
			return slog.String(a.Key, userinfoPattern.ReplaceAllString(v, "${1}"+MaskValue+"@"))
		}
	}
	return a
}

func isRedactedKey(key string) bool {
	key = strings.ToLower(key)
	if redactedKeys[key] {
		return true
	}
	for _, kw := range redactedKeywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

func isRedactedValue(v string) bool {
	for _, re := range redactedValues {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}
