package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nao1215/imgscrape/internal/log"
	"github.com/nao1215/imgscrape/internal/model"
)

const fileExt = ".json"

var (
	// ErrNotFound is returned by Load when no checkpoint exists for a root URL.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrRootMismatch is returned when a stored document belongs to another root URL.
	ErrRootMismatch = errors.New("checkpoint root URL mismatch")
)

// Store loads and saves checkpoints keyed by root URL.
type Store interface {
	Load(rootURL string) (*model.Checkpoint, error)
	Save(cp *model.Checkpoint) error
	Delete(rootURL string) error
}

// FileStore keeps checkpoints as JSON files in one directory.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *FileStore) {
		s.logger = l
	}
}

// NewFileStore returns a FileStore rooted at dir. The directory is created on
// the first Save.
func NewFileStore(dir string, opts ...Option) *FileStore {
	s := &FileStore{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.Category(s.logger, log.CategoryStore)
	return s
}

// Dir returns the directory checkpoints are stored in.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the file a checkpoint for rootURL is stored at.
func (s *FileStore) Path(rootURL string) string {
	sum := sha256.Sum256([]byte(rootURL))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])[:16]+fileExt)
}

// Load reads the checkpoint for rootURL.
func (s *FileStore) Load(rootURL string) (*model.Checkpoint, error) {
	cp, err := s.read(s.Path(rootURL))
	if err != nil {
		return nil, err
	}
	if cp.RootURL != rootURL {
		return nil, fmt.Errorf("%w: stored %q, requested %q", ErrRootMismatch, cp.RootURL, rootURL)
	}
	return cp, nil
}

// Save writes cp, replacing any earlier checkpoint for the same root URL.
func (s *FileStore) Save(cp *model.Checkpoint) error {
	if cp == nil || cp.RootURL == "" {
		return errors.New("checkpoint without root URL")
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error wins
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // sync error wins
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}

	path := s.Path(cp.RootURL)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	s.logger.Debug("checkpoint saved", "root", cp.RootURL, "path", path,
		"visited", len(cp.VisitedURLs), "pending", len(cp.PendingTasks))
	return nil
}

// Delete removes the checkpoint for rootURL. A missing checkpoint is not an
// error.
func (s *FileStore) Delete(rootURL string) error {
	err := os.Remove(s.Path(rootURL))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// List returns every stored checkpoint ordered by root URL. Unreadable files
// are logged and skipped.
func (s *FileStore) List() ([]*model.Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	var cps []*model.Checkpoint
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		cp, err := s.read(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable checkpoint", "file", e.Name(), "error", err)
			continue
		}
		cps = append(cps, cp)
	}
	slices.SortFunc(cps, func(a, b *model.Checkpoint) int {
		return strings.Compare(a.RootURL, b.RootURL)
	})
	return cps, nil
}

func (s *FileStore) read(path string) (*model.Checkpoint, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from the store directory
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", filepath.Base(path), err)
	}
	return &cp, nil
}

var _ Store = (*FileStore)(nil)
