// Package storage keeps uploaded collaborator photos and company logos.
package storage

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
)

// ErrUnsupportedType is returned for files that are not images.
var ErrUnsupportedType = errors.New("unsupported file type")

var allowedExt = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// BlobStore saves uploads and returns the public URL they are served from.
type BlobStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

// LocalStore writes uploads below Dir and serves them under URLPrefix.
type LocalStore struct {
	Dir       string
	URLPrefix string
	MaxBytes  int64
}

// NewLocalStore returns a store rooted at dir.
func NewLocalStore(dir, urlPrefix string) *LocalStore {
	return &LocalStore{Dir: dir, URLPrefix: strings.TrimRight(urlPrefix, "/"), MaxBytes: 5 << 20}
}

// Save stores r under a random name that keeps the original extension.
// Only png, jpg, jpeg and gif are accepted.
func (s *LocalStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", ErrUnsupportedType
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir uploads: %w", err)
	}
	name := uuid.NewString() + ext
	f, err := os.OpenFile(filepath.Join(s.Dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	limit := s.MaxBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = fmt.Errorf("upload exceeds %d bytes", limit)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.Dir, name))
		return "", err
	}
	return path.Join(s.URLPrefix, name), nil
}

// Delete removes a previously saved upload. URLs outside the prefix and
// missing files are ignored.
func (s *LocalStore) Delete(_ context.Context, url string) error {
	if url == "" || !strings.HasPrefix(url, s.URLPrefix+"/") {
		return nil
	}
	name := path.Base(url)
	err := os.Remove(filepath.Join(s.Dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
