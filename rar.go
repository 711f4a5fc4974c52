package archivenest

import (
	"bufio"
	"bytes"
	"fmt"
)

// RAR version tags reported in dumps.
const (
	VersionUnknown = "UNKNOWN"
	VersionRar3    = "RAR3"
	VersionRar5    = "RAR5"
)

var (
	rarSigV3 = []byte("Rar!\x1A\x07\x00")     // RAR 1.5/2.x/3.x signature (7 bytes + 0x00)
	rarSigV5 = []byte("Rar!\x1A\x07\x01\x00") // RAR5 signature
)

// signatureWindow bounds how far into a source signatures are searched.
// SFX stubs may prepend data, but headers appear near the start.
const signatureWindow = 1024

// FileBlock represents a file header encountered in a RAR volume.
type FileBlock struct {
	Name         string
	Dir          bool
	HeaderPos    int64 // offset where header starts
	HeaderSize   int64 // full header size
	DataPos      int64 // where the file's data starts within this volume
	PackedSize   int64 // size stored (for stored == original)
	UnpackedSize int64 // original size (if available)
	Stored       bool  // true if file data is stored (no compression)
	Encrypted    bool  // true if file data is password-protected
}

// RarDump is the structural dump of a RAR source.
type RarDump struct {
	Version          string
	SignatureOffset  int64
	EncryptedHeaders bool
	Blocks           []FileBlock
}

type rarReader struct {
	src     *Source
	scanned bool
	scanErr error
	dump    RarDump
}

func newRarReader(src *Source) *rarReader { return &rarReader{src: src} }

func (r *rarReader) Source() *Source { return r.src }

func (r *rarReader) FindSignature() (int64, error) {
	buf, err := r.src.Peek(signatureWindow)
	if err != nil {
		return 0, err
	}
	v5 := bytes.Index(buf, rarSigV5)
	v3 := bytes.Index(buf, rarSigV3)
	// The signatures diverge at byte 5, so the indexes are independent;
	// the earlier one wins (v5 on a tie, it is the longer match).
	switch {
	case v5 >= 0 && (v3 < 0 || v5 <= v3):
		return int64(v5), nil
	case v3 >= 0:
		return int64(v3), nil
	default:
		return 0, fmt.Errorf("RAR signature not found in first %d bytes", signatureWindow)
	}
}

// scan walks the volume once and caches every file block.
func (r *rarReader) scan() error {
	if r.scanned {
		return r.scanErr
	}
	r.scanned = true
	sigOffset, err := r.FindSignature()
	if err != nil {
		r.scanErr = err
		return err
	}
	r.dump.SignatureOffset = sigOffset
	version := VersionRar3
	probe, _ := r.src.Peek(int(sigOffset) + len(rarSigV5))
	if len(probe) >= int(sigOffset)+len(rarSigV5) && bytes.Equal(probe[sigOffset:sigOffset+int64(len(rarSigV5))], rarSigV5) {
		version = VersionRar5
	}
	r.dump.Version = version

	br := bufio.NewReader(r.src.Reader())
	if _, err := br.Discard(int(sigOffset)); err != nil {
		r.scanErr = err
		return err
	}
	switch version {
	case VersionRar3:
		err = parseRar3(br, &r.dump, sigOffset, r.src.Size())
		if err != nil || len(r.dump.Blocks) == 0 {
			// fallback attempt for legacy (RAR 1.5/2.x) layout
			lbr := bufio.NewReader(r.src.Reader())
			if _, derr := lbr.Discard(int(sigOffset) + 8); derr == nil {
				if lerr := scanLegacy(lbr, &r.dump, sigOffset); lerr == nil && len(r.dump.Blocks) > 0 {
					err = nil
				}
			}
		}
	case VersionRar5:
		err = parseRar5(br, &r.dump, sigOffset, r.src.Size())
	}
	if err == nil && len(r.dump.Blocks) == 0 && !r.dump.EncryptedHeaders {
		err = fmt.Errorf("no file headers found (%s)", version)
	}
	r.scanErr = err
	return err
}

func (r *rarReader) Entries(includeRanges bool) ([]Entry, error) {
	if err := r.scan(); err != nil {
		return nil, err
	}
	if r.dump.EncryptedHeaders {
		return nil, fmt.Errorf("%w: archive headers are encrypted", ErrEncryptedChild)
	}
	entries := make([]Entry, 0, len(r.dump.Blocks))
	for _, fb := range r.dump.Blocks {
		e := Entry{
			Name:         fb.Name,
			Dir:          fb.Dir,
			Compressed:   !fb.Stored && !fb.Dir,
			Encrypted:    fb.Encrypted,
			UnpackedSize: fb.UnpackedSize,
		}
		if includeRanges && !fb.Dir && fb.PackedSize > 0 {
			e.Range = &Range{Start: fb.DataPos, End: fb.DataPos + fb.PackedSize}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *rarReader) Dump() (any, error) {
	if err := r.scan(); err != nil {
		return nil, err
	}
	return r.dump, nil
}
