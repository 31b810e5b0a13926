// Package manifest records a finished multi-format capture as a
// deterministic CBOR document written next to its artifacts.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/cjeanneret/multishot/internal/debug"
	"github.com/cjeanneret/multishot/internal/hw/camera"
	"github.com/cjeanneret/multishot/internal/logic/capture"
	"github.com/cjeanneret/multishot/internal/store"
)

// Version of the manifest layout.
const Version = 1

// Extension is appended to the capture ID to name manifest files.
const Extension = ".manifest.cbor"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Core Deterministic Encoding: the same capture always produces the
	// same bytes. Formats are written as their tags.
	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("manifest: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Device metadata is decoded back into map[string]any.
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("manifest: CBOR decoder initialization failed: " + err.Error())
	}
}

// Entry describes one artifact of the capture.
type Entry struct {
	HandleID  uint64            `cbor:"handle_id" json:"handle_id"`
	Format    camera.Format     `cbor:"format" json:"format"`
	File      string            `cbor:"file" json:"file"` // base name, relative to the manifest
	Size      int64             `cbor:"size" json:"size"`
	Digest    string            `cbor:"blake3" json:"blake3"`
	Width     *int              `cbor:"width,omitempty" json:"width,omitempty"`
	Height    *int              `cbor:"height,omitempty" json:"height,omitempty"`
	IsRaw     bool              `cbor:"raw" json:"raw"`
	Thumbnail *camera.Thumbnail `cbor:"thumbnail,omitempty" json:"thumbnail,omitempty"`
	Metadata  map[string]any    `cbor:"metadata,omitempty" json:"metadata,omitempty"`
}

// Skipped is a requested format the device could not deliver.
type Skipped struct {
	Format camera.Format `cbor:"format" json:"format"`
	Reason string        `cbor:"reason" json:"reason"`
}

// Manifest is the persisted record of one resolved aggregate.
type Manifest struct {
	Version   int       `cbor:"version" json:"version"`
	CaptureID string    `cbor:"capture_id" json:"capture_id"`
	CreatedAt time.Time `cbor:"created_at" json:"created_at"`
	Device    string    `cbor:"device,omitempty" json:"device,omitempty"`
	Artifacts []Entry   `cbor:"artifacts" json:"artifacts"`
	Skipped   []Skipped `cbor:"skipped,omitempty" json:"skipped,omitempty"`
}

// FromArtifacts builds a manifest with a fresh capture ID. Artifacts
// keep their completion order.
func FromArtifacts(device string, artifacts []capture.Artifact, skipped []capture.Skip) *Manifest {
	m := &Manifest{
		Version:   Version,
		CaptureID: uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Device:    device,
		Artifacts: make([]Entry, 0, len(artifacts)),
	}
	for _, a := range artifacts {
		m.Artifacts = append(m.Artifacts, Entry{
			HandleID:  a.HandleID,
			Format:    a.Format,
			File:      filepath.Base(a.Path),
			Size:      a.Size,
			Digest:    a.Digest.String(),
			Width:     a.Width,
			Height:    a.Height,
			IsRaw:     a.IsRaw,
			Thumbnail: a.Thumbnail,
			Metadata:  a.Metadata,
		})
	}
	for _, s := range skipped {
		entry := Skipped{Format: s.Format}
		if s.Err != nil {
			entry.Reason = s.Err.Error()
		}
		m.Skipped = append(m.Skipped, entry)
	}
	return m
}

// Marshal encodes m with Core Deterministic Encoding.
func Marshal(m *Manifest) ([]byte, error) {
	return encMode.Marshal(m)
}

// Unmarshal decodes a manifest. Unknown fields are ignored.
func Unmarshal(data []byte) (*Manifest, error) {
	var m Manifest
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version != Version {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return &m, nil
}

// Write stores m in dir as <capture_id>.manifest.cbor and returns the path.
// The file is written under a temporary name and renamed into place.
func Write(dir string, m *Manifest) (string, error) {
	data, err := Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if debug.IsEnabled(debug.LevelTrace) {
		if diag, err := cbor.Diagnose(data); err == nil {
			debug.Trace("Manifest %s: %s", m.CaptureID, diag)
		}
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return "", fmt.Errorf("create manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close manifest: %w", err)
	}

	path := filepath.Join(dir, m.CaptureID+Extension)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename manifest: %w", err)
	}
	debug.Live("Manifest written to %s (%d artifacts)", path, len(m.Artifacts))
	return path, nil
}

// Read loads a manifest file.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Unmarshal(data)
}

// ErrDigestMismatch is reported by Verify for an artifact whose file
// content no longer matches the recorded digest.
var ErrDigestMismatch = errors.New("digest mismatch")

// Verify re-hashes every artifact listed in m, resolving file names
// against dir. All problems are returned joined.
func (m *Manifest) Verify(dir string) error {
	var errs []error
	for _, e := range m.Artifacts {
		path := filepath.Join(dir, e.File)
		got, err := store.HashFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if got.String() != e.Digest {
			errs = append(errs, fmt.Errorf("%s (%s): %w", e.File, e.Format, ErrDigestMismatch))
		}
	}
	return errors.Join(errs...)
}
