package camera

import (
	"fmt"
	"strings"
)

// Format is one physical variant of a multi-format photo.
type Format int

const (
	FormatUnknown Format = iota
	JPEG
	HEVC
	UncompressedBGRA
	BayerRAW
	AppleProRAW
)

var formatTags = map[Format]string{
	JPEG:             "jpeg",
	HEVC:             "hevc",
	UncompressedBGRA: "uncompressedTIFF",
	BayerRAW:         "bayerRAW",
	AppleProRAW:      "appleProRAW",
}

var formatExtensions = map[Format]string{
	JPEG:             "jpeg",
	HEVC:             "heic",
	UncompressedBGRA: "tiff",
	BayerRAW:         "bayerRAW.dng",
	AppleProRAW:      "appleProRAW.dng",
}

var formatAliases = map[string]Format{
	"jpeg":             JPEG,
	"jpg":              JPEG,
	"hevc":             HEVC,
	"heic":             HEVC,
	"heif":             HEVC,
	"uncompressedtiff": UncompressedBGRA,
	"uncompressed":     UncompressedBGRA,
	"tiff":             UncompressedBGRA,
	"bgra":             UncompressedBGRA,
	"bayerraw":         BayerRAW,
	"bayer":            BayerRAW,
	"appleproraw":      AppleProRAW,
	"proraw":           AppleProRAW,
}

// AllFormats returns the five formats in canonical order.
func AllFormats() []Format {
	return []Format{JPEG, HEVC, UncompressedBGRA, BayerRAW, AppleProRAW}
}

// String returns the format tag used in logs, results and manifests.
func (f Format) String() string {
	if tag, ok := formatTags[f]; ok {
		return tag
	}
	return "unknown"
}

// Extension returns the file extension (without dot) for the format.
func (f Format) Extension() string {
	if ext, ok := formatExtensions[f]; ok {
		return ext
	}
	return "bin"
}

// IsRAW reports whether the format is a RAW-family variant.
func (f Format) IsRAW() bool {
	return f == BayerRAW || f == AppleProRAW
}

// Valid reports whether f is one of the five known formats.
func (f Format) Valid() bool {
	_, ok := formatTags[f]
	return ok
}

// ParseFormat parses a format tag or alias (case-insensitive).
func ParseFormat(s string) (Format, error) {
	if f, ok := formatAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return FormatUnknown, fmt.Errorf("unknown format %q", s)
}

// ParseFormats parses a list of format tags, keeping order.
func ParseFormats(tags []string) ([]Format, error) {
	out := make([]Format, 0, len(tags))
	for _, tag := range tags {
		f, err := ParseFormat(tag)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// MarshalText encodes the format as its tag.
func (f Format) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("cannot marshal format %d", int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText decodes a tag or alias.
func (f *Format) UnmarshalText(b []byte) error {
	parsed, err := ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
