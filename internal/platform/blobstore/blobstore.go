// Package blobstore stores uploaded files (profile images, documents, lab
// scans). Only the returned storage path is persisted in the database.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/mdhs/ehr/internal/platform/apperr"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrInvalidPath        = errors.New("invalid storage path")
	ErrEmptyFile          = errors.New("file is empty")
)

// ImageTypes are accepted for profile pictures.
var ImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// DocumentTypes are accepted for patient documents and lab scans.
var DocumentTypes = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
}

// Object describes a stored blob.
type Object struct {
	Path        string
	ContentType string
	Size        int64
	SHA256      string
}

// Store is implemented by the disk and in-memory backends.
type Store interface {
	Put(ctx context.Context, storagePath string, content io.Reader) (int64, error)
	Open(ctx context.Context, storagePath string) (io.ReadCloser, error)
	Delete(ctx context.Context, storagePath string) error
}

// Upload sniffs the content type from the first bytes, checks it against
// allowed, enforces maxSize and writes the content under dir with a name
// derived from id. The declared client content type is ignored.
func Upload(ctx context.Context, s Store, dir, id string, content io.Reader, maxSize int64, allowed map[string]string) (*Object, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyFile
	}
	head = head[:n]

	contentType, _, _ := strings.Cut(http.DetectContentType(head), ";")
	ext, ok := allowed[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContentType, contentType)
	}

	hash := sha256.New()
	limited := &sizeLimiter{r: io.MultiReader(bytes.NewReader(head), content), remaining: maxSize}
	obj := &Object{
		Path:        path.Join(dir, id+ext),
		ContentType: contentType,
	}
	size, err := s.Put(ctx, obj.Path, io.TeeReader(limited, hash))
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			_ = s.Delete(ctx, obj.Path)
		}
		return nil, err
	}
	obj.Size = size
	obj.SHA256 = fmt.Sprintf("%x", hash.Sum(nil))
	return obj, nil
}

// ValidationError maps an upload rejection onto a field validation error.
// Other errors are returned unchanged.
func ValidationError(field string, err error, maxSize int64) error {
	switch {
	case errors.Is(err, ErrEmptyFile):
		return apperr.Validation(field, "file is empty")
	case errors.Is(err, ErrInvalidContentType):
		return apperr.Validation(field, "file type is not allowed")
	case errors.Is(err, ErrFileTooLarge):
		if maxSize < 1<<20 {
			return apperr.Validation(field, fmt.Sprintf("file exceeds %d KB", maxSize>>10))
		}
		return apperr.Validation(field, fmt.Sprintf("file exceeds %d MB", maxSize>>20))
	}
	return err
}

type sizeLimiter struct {
	r         io.Reader
	remaining int64
}

func (l *sizeLimiter) Read(p []byte) (int, error) {
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrFileTooLarge
	}
	return n, err
}

// CleanPath rejects absolute paths and parent references.
func CleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}
	return clean, nil
}

// MemoryStore keeps blobs in a map. Used by tests and when no upload
// directory is configured in development.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, storagePath string, content io.Reader) (int64, error) {
	p, err := CleanPath(storagePath)
	if err != nil {
		return 0, err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.blobs[p] = data
	s.mu.Unlock()
	return int64(len(data)), nil
}

func (s *MemoryStore) Open(_ context.Context, storagePath string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[storagePath]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Delete(_ context.Context, storagePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[storagePath]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, storagePath)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
