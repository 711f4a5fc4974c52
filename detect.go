package archivenest

import (
	"fmt"
	"log/slog"
)

// Reader is the contract every format parser implements. Readers only parse
// structure; range I/O goes through the Source they were constructed over.
type Reader interface {
	// FindSignature returns the offset of the format's signature within the
	// source window, or an error when the signature is absent.
	FindSignature() (int64, error)
	// Entries lists the container's files in directory order. When
	// includeRanges is set, entries carry byte ranges where determinable.
	Entries(includeRanges bool) ([]Entry, error)
	// Dump returns the format-specific structural dump (block list, packet
	// list, record list). Diagnostics only; shape varies per format.
	Dump() (any, error)
	// Source exposes the byte source the reader was constructed over.
	Source() *Source
}

// Binding pairs an ArchiveType with its reader constructor. Order matters:
// the detector evaluates bindings in slice order and first-registered wins
// signature-offset ties.
type Binding struct {
	Type ArchiveType
	Open func(src *Source) Reader
}

// DefaultBindings returns the standard reader table. RAR is registered first:
// when a container legitimately embeds another format's signature (an SFV
// listing stored inside a RAR), the outermost container's signature appears
// first in the stream and earliest-offset-wins picks it regardless of order.
func DefaultBindings() []Binding {
	return []Binding{
		{Type: TypeRAR, Open: func(src *Source) Reader { return newRarReader(src) }},
		{Type: TypeZIP, Open: func(src *Source) Reader { return newZipReader(src) }},
		{Type: TypeSRR, Open: func(src *Source) Reader { return newSrrReader(src) }},
		{Type: TypeSFV, Open: func(src *Source) Reader { return newSfvReader(src) }},
		{Type: TypePAR2, Open: func(src *Source) Reader { return newPar2Reader(src) }},
	}
}

// detect tries each binding against src and selects the reader whose
// signature occurs earliest; ties keep the first-registered candidate.
func detect(src *Source, bindings []Binding, log *slog.Logger) (ArchiveType, Reader, error) {
	if src == nil {
		return TypeNone, nil, ErrNoSource
	}
	best := int64(-1)
	bestType := TypeNone
	var bestReader Reader
	for _, b := range bindings {
		r := b.Open(src)
		pos, err := r.FindSignature()
		if err != nil {
			continue
		}
		log.Debug("signature found", "type", b.Type.String(), "offset", pos)
		if best < 0 || pos < best {
			best = pos
			bestType = b.Type
			bestReader = r
		}
		if pos == 0 {
			// Cannot be beaten; later bindings lose ties by registration order.
			break
		}
	}
	if bestReader == nil {
		return TypeNone, nil, fmt.Errorf("%w (%d bytes scanned)", ErrUnsupportedFormat, src.Size())
	}
	return bestType, bestReader, nil
}

// errString reports an error message or "" for nil, for sticky-error storage.
func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
