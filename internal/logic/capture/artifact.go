package capture

import (
	"maps"

	"github.com/cjeanneret/multishot/internal/hw/camera"
	"github.com/cjeanneret/multishot/internal/store"
)

// Artifact is one finished capture. Do not modify an Artifact after it
// has been handed out; Metadata is a private copy of the device map.
type Artifact struct {
	HandleID  uint64
	Format    camera.Format
	Path      string
	Width     *int
	Height    *int
	IsRaw     bool
	Metadata  map[string]any
	Thumbnail *camera.Thumbnail
	Size      int64
	Digest    store.Digest
}

func newArtifact(h *Handle, photo *camera.Photo, file store.File) Artifact {
	w, ht := dimensions(photo.Metadata)
	var thumb *camera.Thumbnail
	if photo.Thumbnail != nil {
		t := *photo.Thumbnail
		thumb = &t
	}
	return Artifact{
		HandleID:  h.id,
		Format:    h.format,
		Path:      file.Path,
		Width:     w,
		Height:    ht,
		IsRaw:     photo.IsRaw,
		Metadata:  maps.Clone(photo.Metadata),
		Thumbnail: thumb,
		Size:      file.Size,
		Digest:    file.Digest,
	}
}

// dimensions reads pixel dimensions from device metadata: the {Exif}
// dictionary first, then the top-level PixelWidth/PixelHeight that RAW
// files carry. Missing values yield nil.
func dimensions(meta map[string]any) (width, height *int) {
	if exif, ok := meta["{Exif}"].(map[string]any); ok {
		width = intValue(exif["PixelXDimension"])
		height = intValue(exif["PixelYDimension"])
	}
	if width == nil {
		width = intValue(meta["PixelWidth"])
	}
	if height == nil {
		height = intValue(meta["PixelHeight"])
	}
	return width, height
}

func intValue(v any) *int {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int32:
		n = int(x)
	case int64:
		n = int(x)
	case uint32:
		n = int(x)
	case uint64:
		n = int(x)
	case float64:
		n = int(x)
	case float32:
		n = int(x)
	default:
		return nil
	}
	if n <= 0 {
		return nil
	}
	return &n
}
