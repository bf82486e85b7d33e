package download

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/imgscrape/internal/config"
)

const (
	// FallbackName is used when no filename can be derived from the URL.
	FallbackName = "image"

	// FallbackExt is appended to names without an extension.
	FallbackExt = ".jpg"

	maxNameBytes = 200

	// maxCollisions bounds the numeric suffix search of allocateFile.
	maxCollisions = 10000
)

var (
	unsafeChars = regexp.MustCompile(`[\x00-\x1F/\\:*?"<>|]`)
	whitespace  = regexp.MustCompile(`[[:space:]]+`)
)

// errCollisionLimit is returned when every suffixed name is taken.
var errCollisionLimit = errors.New("no free file name")

// sanitize makes s safe as a single path element.
func sanitize(s, fallback string) string {
	s = norm.NFC.String(s)
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	s = unsafeChars.ReplaceAllString(s, "_")
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." {
		return fallback
	}
	if strings.HasPrefix(s, ".") {
		return fallback + s
	}
	return s
}

// fileNameFromURL derives the file name from the last path element of
// imageURL. Names without an extension get FallbackExt.
func fileNameFromURL(imageURL string) string {
	name := ""
	if u, err := url.Parse(imageURL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "/" || name == "." {
		name = ""
	}
	name = sanitize(name, FallbackName)
	if path.Ext(name) == "" {
		name += FallbackExt
	}
	return truncateName(name)
}

// truncateName shortens name to maxNameBytes keeping the extension and
// whole runes.
func truncateName(name string) string {
	if len(name) <= maxNameBytes {
		return name
	}
	ext := path.Ext(name)
	base := name[:len(name)-len(ext)]
	limit := maxNameBytes - len(ext)
	for limit > 0 && !utf8.RuneStart(base[limit]) {
		limit--
	}
	return base[:limit] + ext
}

// extensionFor returns the file extension used for a conversion format.
func extensionFor(format string) string {
	if format == "jpeg" {
		return ".jpg"
	}
	return "." + format
}

// withExtension replaces the extension of name.
func withExtension(name, ext string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + ext
}

// targetDir resolves the folder an image from pageURL is written to.
func targetDir(base string, mode config.OrganizeMode, pageURL string, now time.Time) string {
	switch mode {
	case config.OrganizeByDate:
		return filepath.Join(base, now.Format(time.DateOnly))
	case config.OrganizeByPage, config.OrganizeMirrored:
	default:
		return base
	}

	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return base
	}
	dir := filepath.Join(base, sanitize(strings.ToLower(u.Host), FallbackName))
	if mode == config.OrganizeByPage {
		return dir
	}

	for _, seg := range strings.Split(u.Path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		dir = filepath.Join(dir, sanitize(seg, FallbackName))
	}
	return dir
}

// allocateFile creates dir/name, or dir/name_N.ext for the lowest free N,
// with O_EXCL so that concurrent allocations never share a path.
func allocateFile(dir, name string) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, "", fmt.Errorf("create %s: %w", dir, err)
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := range maxCollisions {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		p := filepath.Join(dir, candidate)
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // path is built from sanitized elements
		if err == nil {
			return f, p, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", p, err)
		}
	}
	return nil, "", fmt.Errorf("%s in %s: %w", name, dir, errCollisionLimit)
}
