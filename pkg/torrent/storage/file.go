package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// File stores a single-file torrent in one file on disk.
type File struct {
	f        *os.File
	length   int64
	writable bool
}

// CreateFile opens (creating if needed) path for writing and sizes it to
// length so pieces can be written at any offset.
func CreateFile(path string, length int64) (*File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}

	if err := f.Truncate(length); err != nil {
		f.Close()
		return nil, fmt.Errorf("size output file: %w", err)
	}

	return &File{f: f, length: length, writable: true}, nil
}

// OpenFile opens an existing file read-only, e.g. to seed it. Writes fail.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &File{f: f, length: stat.Size()}, nil
}

// ReadBlock reads len(b) bytes at off.
func (s *File) ReadBlock(b []byte, off int64) (int, error) {
	if err := checkRange(s.length, off, len(b)); err != nil {
		return 0, err
	}

	return s.f.ReadAt(b, off)
}

// WriteBlock writes b at off. os.File.WriteAt is safe for concurrent use
// on disjoint ranges.
func (s *File) WriteBlock(b []byte, off int64) (int, error) {
	if !s.writable {
		return 0, fmt.Errorf("write %s: opened read-only", s.f.Name())
	}

	if err := checkRange(s.length, off, len(b)); err != nil {
		return 0, err
	}

	return s.f.WriteAt(b, off)
}

// Len returns the size of the stored data.
func (s *File) Len() int64 {
	return s.length
}

// Close flushes written data to disk and closes the file.
func (s *File) Close() error {
	if s.writable {
		if err := s.f.Sync(); err != nil {
			s.f.Close()
			return err
		}
	}

	return s.f.Close()
}
