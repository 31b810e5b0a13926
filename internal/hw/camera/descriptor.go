package camera

// Quality selects the device's speed/quality trade-off for processed formats.
type Quality int

const (
	QualityUnspecified Quality = iota
	QualitySpeed
	QualityBalanced
	QualityQuality
)

func (q Quality) String() string {
	switch q {
	case QualitySpeed:
		return "speed"
	case QualityBalanced:
		return "balanced"
	case QualityQuality:
		return "quality"
	default:
		return "unspecified"
	}
}

// Settings is the format-specific device configuration of one request.
type Settings struct {
	Codec          string // "jpeg" or "hevc" for processed formats
	PixelFormat    uint32 // FourCC for uncompressed buffers
	RawPixelFormat uint32 // device raw pixel format code
	HighResolution bool
	Quality        Quality // unspecified for RAW requests
}

// Descriptor describes one requested variant. It is a value type and
// is never modified once built.
type Descriptor struct {
	Format   Format
	Settings Settings
}

// RawKind separates the two RAW pixel layout families.
type RawKind int

const (
	RawBayer RawKind = iota + 1
	RawProRAW
)

// RawPixelFormat is one RAW layout offered by the device.
type RawPixelFormat struct {
	Code uint32
	Kind RawKind
}

// Common pixel format codes.
var (
	PixelFormatBGRA   = FourCC("BGRA")
	RawFormatBayer14  = FourCC("rgg4")
	RawFormatProRAW64 = FourCC("l64r")
)

// FourCC packs a four character code, big-endian.
func FourCC(s string) uint32 {
	var v uint32
	for i := 0; i < 4 && i < len(s); i++ {
		v = v<<8 | uint32(s[i])
	}
	return v
}

// Capabilities lists the pixel layouts a device can deliver.
type Capabilities struct {
	PixelFormats    []uint32
	RawPixelFormats []RawPixelFormat
}

// SupportsPixelFormat reports whether code is an available uncompressed layout.
func (c Capabilities) SupportsPixelFormat(code uint32) bool {
	for _, pf := range c.PixelFormats {
		if pf == code {
			return true
		}
	}
	return false
}

// FirstRaw returns the first available RAW layout of the given kind.
func (c Capabilities) FirstRaw(kind RawKind) (RawPixelFormat, bool) {
	for _, rf := range c.RawPixelFormats {
		if rf.Kind == kind {
			return rf, true
		}
	}
	return RawPixelFormat{}, false
}
