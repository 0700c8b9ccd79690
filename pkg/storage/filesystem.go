package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrSizeExceeded is returned when a stream is larger than the permitted limit.
var ErrSizeExceeded = errors.New("stream exceeds size limit")

// ErrOutsideRoot is returned for relative paths that would escape the storage root.
var ErrOutsideRoot = errors.New("path escapes storage root")

// LocalStorage persists files on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("storage directory required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Root returns the base directory.
func (s *LocalStorage) Root() string {
	return s.baseDir
}

// Probe verifies the root is a directory the process can write to.
func (s *LocalStorage) Probe() error {
	info, err := os.Stat(s.baseDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", s.baseDir)
	}
	f, err := os.CreateTemp(s.baseDir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// SaveStream copies from reader into the target path through a temp file that is
// fsynced and renamed into place. A non-positive limit disables the size cap.
func (s *LocalStorage) SaveStream(rel string, r io.Reader, limit int64) (int64, error) {
	path, err := s.resolve(rel)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, fmt.Errorf("prepare storage directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".partial-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) (int64, error) {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
		return 0, err
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	written, err := io.Copy(tmp, src)
	if err != nil {
		return fail(fmt.Errorf("write stream: %w", err))
	}
	if limit > 0 && written > limit {
		return fail(ErrSizeExceeded)
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("fsync: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return 0, fmt.Errorf("rename into place: %w", err)
	}
	return written, nil
}

// CopyTo writes the file at srcRel into dst at dstRel and confirms the written size.
// The source is left untouched.
func (s *LocalStorage) CopyTo(dst *LocalStorage, srcRel, dstRel string) (int64, error) {
	src, err := s.Open(srcRel)
	if err != nil {
		return 0, err
	}
	defer src.Close() //nolint:errcheck

	info, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	written, err := dst.SaveStream(dstRel, src, 0)
	if err != nil {
		return 0, err
	}
	if written != info.Size() {
		_ = dst.Delete(dstRel)
		return 0, fmt.Errorf("copy incomplete: wrote %d of %d bytes", written, info.Size())
	}
	return written, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(rel string) (*os.File, error) {
	path, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return file, nil
}

// ReadAll returns the full content of a stored file.
func (s *LocalStorage) ReadAll(rel string) ([]byte, error) {
	path, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stored file: %w", err)
	}
	return data, nil
}

// EntryKind classifies what sits at a storage key.
type EntryKind int

const (
	EntryMissing EntryKind = iota
	EntryFile
	// EntryOther is anything that is not a regular file, such as a directory.
	EntryOther
)

// Kind reports what is stored at rel.
func (s *LocalStorage) Kind(rel string) (EntryKind, error) {
	path, err := s.resolve(rel)
	if err != nil {
		return EntryMissing, err
	}
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return EntryMissing, nil
		}
		return EntryMissing, fmt.Errorf("stat stored file: %w", err)
	}
	if info.Mode().IsRegular() {
		return EntryFile, nil
	}
	return EntryOther, nil
}

// Exists reports whether a regular file is present at rel.
func (s *LocalStorage) Exists(rel string) (bool, error) {
	kind, err := s.Kind(rel)
	return kind == EntryFile, err
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(rel string) error {
	path, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete stored file: %w", err)
	}
	return nil
}

// RemoveDirIfEmpty deletes the directory holding rel when nothing else is left in it.
// The storage root itself is never removed.
func (s *LocalStorage) RemoveDirIfEmpty(rel string) error {
	path, err := s.resolve(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if filepath.Clean(dir) == filepath.Clean(s.baseDir) {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read directory: %w", err)
	}
	if len(entries) > 0 {
		return nil
	}
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove empty directory: %w", err)
	}
	return nil
}

// ListFolders returns the names of the top-level directories under the root.
func (s *LocalStorage) ListFolders() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list storage folders: %w", err)
	}
	folders := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			folders = append(folders, entry.Name())
		}
	}
	return folders, nil
}

// Path exposes the underlying absolute path (useful for debugging).
func (s *LocalStorage) Path(rel string) string {
	path, err := s.resolve(rel)
	if err != nil {
		return ""
	}
	return path
}

func (s *LocalStorage) resolve(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	path := filepath.Join(s.baseDir, rel)
	within, err := filepath.Rel(s.baseDir, path)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	return path, nil
}
