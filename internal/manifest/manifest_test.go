package manifest

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/cjeanneret/multishot/internal/hw/camera"
	"github.com/cjeanneret/multishot/internal/logic/capture"
	"github.com/cjeanneret/multishot/internal/store"
)

func intPtr(n int) *int { return &n }

// persisted writes one artifact per format through a real store.
func persisted(t *testing.T, formats ...camera.Format) (string, []capture.Artifact) {
	t.Helper()
	st, err := store.New(store.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	var artifacts []capture.Artifact
	for i, f := range formats {
		file, err := st.Persist(f, []byte("payload-"+f.String()))
		if err != nil {
			t.Fatalf("Persist: %v", err)
		}
		artifacts = append(artifacts, capture.Artifact{
			HandleID: uint64(i + 1),
			Format:   f,
			Path:     file.Path,
			Width:    intPtr(4032),
			Height:   intPtr(3024),
			IsRaw:    f.IsRAW(),
			Metadata: map[string]any{"{TIFF}": map[string]any{"Model": "simulated"}},
			Size:     file.Size,
			Digest:   file.Digest,
		})
	}
	return st.Dir(), artifacts
}

func TestFromArtifacts(t *testing.T) {
	_, artifacts := persisted(t, camera.HEVC, camera.JPEG)
	skip := []capture.Skip{{Format: camera.BayerRAW, Err: errors.New("no bayerRAW pixel format available")}}

	m := FromArtifacts("simulated", artifacts, skip)

	if _, err := uuid.Parse(m.CaptureID); err != nil {
		t.Errorf("CaptureID %q is not a UUID: %v", m.CaptureID, err)
	}
	if m.Version != Version || m.Device != "simulated" {
		t.Errorf("header = %+v", m)
	}
	if len(m.Artifacts) != 2 || m.Artifacts[0].Format != camera.HEVC || m.Artifacts[1].Format != camera.JPEG {
		t.Fatalf("artifacts should keep completion order, got %+v", m.Artifacts)
	}
	e := m.Artifacts[0]
	if e.File != filepath.Base(artifacts[0].Path) || strings.Contains(e.File, string(os.PathSeparator)) {
		t.Errorf("File = %q, want base name", e.File)
	}
	if e.Digest != artifacts[0].Digest.String() || len(e.Digest) != 64 {
		t.Errorf("Digest = %q", e.Digest)
	}
	if len(m.Skipped) != 1 || m.Skipped[0].Format != camera.BayerRAW {
		t.Errorf("Skipped = %+v", m.Skipped)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	_, artifacts := persisted(t, camera.JPEG, camera.AppleProRAW)
	m := FromArtifacts("simulated", artifacts, nil)

	first, err := Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(m)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("encoding is not deterministic")
		}
	}
}

func TestMarshal_FormatsAsTags(t *testing.T) {
	_, artifacts := persisted(t, camera.UncompressedBGRA)
	data, err := Marshal(FromArtifacts("", artifacts, nil))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Contains(data, []byte("uncompressedTIFF")) {
		t.Error("format should be encoded as its text tag")
	}
}

func TestWriteRead_Roundtrip(t *testing.T) {
	dir, artifacts := persisted(t, camera.JPEG, camera.BayerRAW)
	artifacts[1].Thumbnail = &camera.Thumbnail{Codec: "jpeg", Width: 252, Height: 189}
	m := FromArtifacts("gpio_trigger", artifacts, nil)

	path, err := Write(dir, m)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(path) != m.CaptureID+Extension {
		t.Errorf("path = %s", path)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.CaptureID != m.CaptureID || !got.CreatedAt.Equal(m.CreatedAt) {
		t.Errorf("header = %+v, want %+v", got, m)
	}
	if len(got.Artifacts) != 2 {
		t.Fatalf("artifacts = %+v", got.Artifacts)
	}
	raw := got.Artifacts[1]
	if raw.Format != camera.BayerRAW || !raw.IsRaw || raw.Thumbnail == nil || raw.Thumbnail.Width != 252 {
		t.Errorf("raw entry = %+v", raw)
	}
	if raw.Width == nil || *raw.Width != 4032 {
		t.Errorf("width = %v", raw.Width)
	}
	tiff, ok := raw.Metadata["{TIFF}"].(map[string]any)
	if !ok || tiff["Model"] != "simulated" {
		t.Errorf("metadata = %#v", raw.Metadata)
	}

	if err := got.Verify(dir); err != nil {
		t.Errorf("Verify: %v", err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".manifest-*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

func TestVerify_DetectsTampering(t *testing.T) {
	dir, artifacts := persisted(t, camera.JPEG, camera.HEVC)
	m := FromArtifacts("", artifacts, nil)

	if err := os.WriteFile(artifacts[1].Path, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(artifacts[0].Path); err != nil {
		t.Fatal(err)
	}

	err := m.Verify(dir)
	if !errors.Is(err, ErrDigestMismatch) {
		t.Errorf("err = %v, want ErrDigestMismatch", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v should report the missing file", err)
	}
}

func TestUnmarshal_Invalid(t *testing.T) {
	if _, err := Unmarshal([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error for garbage input")
	}

	data, err := encMode.Marshal(map[string]any{"version": 99})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); err == nil || !strings.Contains(err.Error(), "version") {
		t.Errorf("err = %v, want unsupported version", err)
	}
}

func TestWrite_MissingDir(t *testing.T) {
	m := FromArtifacts("", nil, nil)
	if _, err := Write(filepath.Join(t.TempDir(), "gone"), m); err == nil {
		t.Error("expected error for missing directory")
	}
}
