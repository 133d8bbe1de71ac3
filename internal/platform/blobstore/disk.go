package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskStore writes blobs below a root directory. Files are written to a
// temporary name first and renamed once complete.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", root, err)
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) resolve(storagePath string) (string, error) {
	p, err := CleanPath(storagePath)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(p)), nil
}

func (s *DiskStore) Put(_ context.Context, storagePath string, content io.Reader) (int64, error) {
	full, err := s.resolve(storagePath)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return 0, fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, content)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return 0, fmt.Errorf("store blob: %w", err)
	}
	return n, nil
}

func (s *DiskStore) Open(_ context.Context, storagePath string) (io.ReadCloser, error) {
	full, err := s.resolve(storagePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return f, err
}

func (s *DiskStore) Delete(_ context.Context, storagePath string) error {
	full, err := s.resolve(storagePath)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrBlobNotFound
	}
	return err
}
