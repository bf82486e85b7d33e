package download

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/nao1215/imgscrape/internal/config"
)

func TestFileNameFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"plain name", "https://example.com/img/cat.png", "cat.png"},
		{"query is ignored", "https://example.com/cat.webp?w=200", "cat.webp"},
		{"escaped name is decoded", "https://example.com/my%20cat.jpg", "my cat.jpg"},
		{"missing extension gets jpg", "https://example.com/photo/12345", "12345.jpg"},
		{"root path falls back", "https://example.com/", "image.jpg"},
		{"escaped percent is decoded once", "https://example.com/100%2525.png", "100%25.png"},
		{"unsafe characters are replaced", "https://example.com/a%3Ab%2A.png", "a_b_.png"},
		{"leading dot is prefixed", "https://example.com/.hidden.png", "image.hidden.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := fileNameFromURL(tt.url); got != tt.want {
				t.Errorf("fileNameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestTruncateName(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("写", 100) + ".png"
	got := truncateName(long)
	if len(got) > maxNameBytes {
		t.Errorf("expected at most %d bytes, got %d", maxNameBytes, len(got))
	}
	if !strings.HasSuffix(got, ".png") || !utf8.ValidString(got) {
		t.Errorf("unexpected truncation %q", got)
	}
}

func TestWithExtension(t *testing.T) {
	t.Parallel()

	if got := withExtension("cat.png", extensionFor("jpeg")); got != "cat.jpg" {
		t.Errorf("unexpected name %q", got)
	}
	if got := withExtension("cat", extensionFor("tiff")); got != "cat.tiff" {
		t.Errorf("unexpected name %q", got)
	}
}

func TestTargetDir(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		mode config.OrganizeMode
		page string
		want string
	}{
		{"flat", config.OrganizeFlat, "https://example.com/a/b", "out"},
		{"by page", config.OrganizeByPage, "https://example.com:8080/a", "out/example.com_8080"},
		{"by date", config.OrganizeByDate, "https://example.com/a", "out/2026-01-02"},
		{"mirrored", config.OrganizeMirrored, "https://example.com/a/b.html", "out/example.com/a/b.html"},
		{"mirrored skips dot segments", config.OrganizeMirrored, "https://example.com/a/../../b", "out/example.com/a/b"},
		{"mirrored escaped segment decoded once", config.OrganizeMirrored, "https://example.com/50%2525/x", "out/example.com/50%25/x"},
		{"mirrored root page", config.OrganizeMirrored, "https://example.com/", "out/example.com"},
		{"unparseable page falls back to base", config.OrganizeByPage, "::", "out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := filepath.ToSlash(targetDir("out", tt.mode, tt.page, now))
			if got != tt.want {
				t.Errorf("targetDir = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAllocateFile_Concurrent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	const n = 16
	paths := make(chan string, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, p, err := allocateFile(dir, "same.png")
			if err != nil {
				t.Errorf("allocateFile: %v", err)
				return
			}
			_ = f.Close() //nolint:errcheck // empty file
			paths <- p
		}()
	}
	wg.Wait()
	close(paths)

	seen := make(map[string]bool)
	for p := range paths {
		if seen[p] {
			t.Errorf("path %s allocated twice", p)
		}
		seen[p] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct paths, got %d", n, len(seen))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != n {
		t.Errorf("expected %d files, got %d", n, len(entries))
	}
}
