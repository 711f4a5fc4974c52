package archivenest

import (
	"errors"
	"fmt"
)

// ArchiveType identifies the container format of an analyzed source.
type ArchiveType int

const (
	TypeNone ArchiveType = iota
	TypeRAR
	TypeZIP
	TypeSRR
	TypeSFV
	TypePAR2
)

func (t ArchiveType) String() string {
	switch t {
	case TypeRAR:
		return "RAR"
	case TypeZIP:
		return "ZIP"
	case TypeSRR:
		return "SRR"
	case TypeSFV:
		return "SFV"
	case TypePAR2:
		return "PAR2"
	default:
		return "NONE"
	}
}

// AllowsRecursion reports whether the format can hold arbitrary nested files
// addressable by byte range. Checksum/metadata listings (SRR, SFV, PAR2) cannot.
func (t ArchiveType) AllowsRecursion() bool {
	return t == TypeRAR || t == TypeZIP
}

// RootLabel is the fixed top-level label of every source path.
const RootLabel = "main"

// SourceSeparator joins ancestor labels in a source path.
const SourceSeparator = " > "

// Range is a half-open absolute byte range [Start, End) within a source.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Size returns End - Start.
func (r Range) Size() int64 { return r.End - r.Start }

// Entry describes one file inside a container. Range is nil when the format
// cannot address the entry's bytes (SFV/PAR2 listings, split continuations).
type Entry struct {
	Name         string `json:"name"`
	Dir          bool   `json:"dir"`
	Range        *Range `json:"range,omitempty"`
	Compressed   bool   `json:"compressed"`
	Encrypted    bool   `json:"encrypted"`
	UnpackedSize int64  `json:"unpackedSize,omitempty"`
	CRC          uint32 `json:"crc,omitempty"` // format extra: SFV/ZIP checksum
}

// FlatEntry is an Entry annotated with its position in the embedded-archive
// tree, or an inline error record for a branch that could not be read.
type FlatEntry struct {
	Entry
	Source string `json:"source"`
	Err    string `json:"error,omitempty"`
}

// Sentinel errors surfaced by the facade.
var (
	ErrUnsupportedFormat = errors.New("unsupported format: no signature found")
	ErrNoSource          = errors.New("no data source available")
	ErrNoReader          = errors.New("no active reader")
	ErrCompressedChild   = errors.New("compressed and cannot be read")
	ErrEncryptedChild    = errors.New("encrypted and cannot be read")
	ErrEntryNotFound     = errors.New("entry not found")
	ErrNotRecursable     = errors.New("format does not support nested archives")
	ErrRangeEscape       = errors.New("entry range escapes parent bounds")

	// Multi-volume listing sentinels, kept from the single-format predecessor API.
	ErrPasswordProtected      = errors.New("password protected")
	ErrCompressedNotSupported = errors.New("compressed file unsupported")
)

func notFoundErr(name, sourcePath string) error {
	return fmt.Errorf("%w: %q at %q", ErrEntryNotFound, name, sourcePath)
}
