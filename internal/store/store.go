// Package store writes captured photo data to uniquely named files.
package store

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/cjeanneret/multishot/internal/debug"
	"github.com/cjeanneret/multishot/internal/hw/camera"
)

// DefaultPrefix is used when Config.Prefix is empty.
const DefaultPrefix = "multishot"

// Digest is the BLAKE3-256 hash of an artifact file.
type Digest [32]byte

// String returns the hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest was never set.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// File describes a flushed artifact file.
type File struct {
	Path   string
	Size   int64
	Digest Digest
}

// Config configures a Store.
type Config struct {
	Dir    string // created if missing
	Prefix string
}

// Store persists photo data under Dir. Safe for concurrent use: names
// are random and files are created with O_EXCL.
type Store struct {
	dir    string
	prefix string
}

// New creates the output directory and returns a Store.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("store: output directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", cfg.Dir, err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{dir: cfg.Dir, prefix: prefix}, nil
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

// Name returns a fresh file name for format f: <prefix>-<uuid>.<ext>.
func (s *Store) Name(f camera.Format) string {
	return fmt.Sprintf("%s-%s.%s", s.prefix, uuid.NewString(), f.Extension())
}

// Persist writes data to a new file, syncs and closes it, and returns
// its path, size and digest. The file is removed if any step fails.
func (s *Store) Persist(f camera.Format, data []byte) (File, error) {
	if len(data) == 0 {
		return File{}, errors.New("no file data")
	}

	path := filepath.Join(s.dir, s.Name(f))
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return File{}, fmt.Errorf("create temp file: %w", err)
	}

	hasher := blake3.New()
	n, err := io.Copy(io.MultiWriter(file, hasher), bytes.NewReader(data))
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return File{}, fmt.Errorf("write %s: %w", path, err)
	}

	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	debug.Trace("Store: wrote %d bytes to %s (blake3 %s)", n, path, digest)
	return File{Path: path, Size: n, Digest: digest}, nil
}

// HashFile computes the BLAKE3 digest of an existing file.
func HashFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("open %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("hash %s: %w", path, err)
	}
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}
