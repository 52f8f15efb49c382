// Package blob stores installer binaries. Paths are randomized per upload
// so they cannot be guessed and never clash.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidPath is returned for paths that are empty or escape the root.
var ErrInvalidPath = errors.New("invalid blob path")

// Object describes a stored blob.
type Object struct {
	// Path is relative to the store root, always slash-separated.
	Path string
	Size int64
}

// Store persists and serves installer binaries.
type Store interface {
	Put(ctx context.Context, tenantID, filename string, r io.Reader) (Object, error)
	Open(ctx context.Context, p string) (io.ReadCloser, error)
	Delete(ctx context.Context, p string) error
	// URLPath is the request path under which the blob is served.
	URLPath(p string) string
}

// FileStore keeps blobs on the local filesystem below Root.
type FileStore struct {
	root      string
	urlPrefix string
	logger    *zap.Logger
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root, urlPrefix string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root %s: %w", root, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		root:      root,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/") + "/",
		logger:    logger,
	}, nil
}

// Root returns the directory blobs are written to.
func (s *FileStore) Root() string {
	return s.root
}

// Put writes r to <tenant>/<random>/<filename>.
func (s *FileStore) Put(ctx context.Context, tenantID, filename string, r io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	rel := path.Join(safeSegment(tenantID), strings.ReplaceAll(uuid.NewString(), "-", ""), safeSegment(filename))
	full, err := s.resolve(rel)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Object{}, fmt.Errorf("create blob directory: %w", err)
	}

	dst, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Object{}, fmt.Errorf("create blob %s: %w", rel, err)
	}
	n, copyErr := io.Copy(dst, r)
	closeErr := dst.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(full)
		if copyErr != nil {
			return Object{}, fmt.Errorf("write blob %s: %w", rel, copyErr)
		}
		return Object{}, fmt.Errorf("close blob %s: %w", rel, closeErr)
	}

	s.logger.Debug("Stored blob", zap.String("path", rel), zap.Int64("size", n))
	return Object{Path: rel, Size: n}, nil
}

// Open returns a reader over the stored bytes.
func (s *FileStore) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", p, err)
	}
	return f, nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *FileStore) Delete(ctx context.Context, p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", p, err)
	}
	// The random directory only ever holds this one file.
	_ = os.Remove(filepath.Dir(full))
	return nil
}

// URLPath joins the media prefix and p.
func (s *FileStore) URLPath(p string) string {
	return s.urlPrefix + strings.TrimPrefix(p, "/")
}

func (s *FileStore) resolve(p string) (string, error) {
	if p == "" {
		return "", ErrInvalidPath
	}
	clean := path.Clean("/" + p)
	if clean == "/" || clean != "/"+p {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// safeSegment turns an arbitrary name into a single path segment.
func safeSegment(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	b := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b = append(b, r)
		default:
			b = append(b, '_')
		}
	}
	out := strings.Trim(string(b), ".")
	if out == "" {
		return "file"
	}
	return out
}
