package archivenest

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// SRR (ReScene) containers reuse the RAR3 block framing: CRC(2) type(1)
// flags(2) size(2) [addsize(4)]. Three SRR-specific block types matter:
//
//	0x69  SRR header (application name)
//	0x6A  stored file: the payload (addsize bytes) is a verbatim file and is
//	      byte-addressable; SRR never compresses stored files
//	0x71  RAR volume marker: the original volume's headers follow, with all
//	      file data stripped, so addsize payloads after a marker are absent
const (
	srrBlockTypeHeader     = 0x69
	srrBlockTypeStoredFile = 0x6A
	srrBlockTypeRarMarker  = 0x71

	srrFlagAppNamePresent = 0x0001
)

var srrSignature = []byte{0x69, 0x69, 0x69} // CRC 0x6969 + block type 0x69

// SrrBlock is one parsed SRR block, kept for dumps.
type SrrBlock struct {
	Type      byte
	Flags     uint16
	Offset    int64
	Name      string // stored file or rar volume name, when present
	DataPos   int64  // stored file payload offset
	DataSize  int64  // stored file payload length
	AppName   string // header block only
	HeaderLen int64
}

// SrrDump is the structural dump of an SRR source.
type SrrDump struct {
	AppName string
	Blocks  []SrrBlock
}

type srrReader struct {
	src     *Source
	scanned bool
	scanErr error
	dump    SrrDump
}

func newSrrReader(src *Source) *srrReader { return &srrReader{src: src} }

func (s *srrReader) Source() *Source { return s.src }

func (s *srrReader) FindSignature() (int64, error) {
	buf, err := s.src.Peek(signatureWindow)
	if err != nil {
		return 0, err
	}
	if i := bytes.Index(buf, srrSignature); i >= 0 {
		return int64(i), nil
	}
	return 0, fmt.Errorf("SRR header block not found in first %d bytes", signatureWindow)
}

func (s *srrReader) scan() error {
	if s.scanned {
		return s.scanErr
	}
	s.scanned = true
	s.scanErr = s.doScan()
	return s.scanErr
}

func (s *srrReader) doScan() error {
	base, err := s.FindSignature()
	if err != nil {
		return err
	}
	br := bufio.NewReader(s.src.Reader())
	if _, err := br.Discard(int(base)); err != nil {
		return err
	}
	pos := base
	inRarSection := false
	for {
		if pos+7 > s.src.Size() {
			return nil
		}
		h, err := readRar3BlockHeader(br)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
		blockStart := pos
		headerRead := int64(7)
		if h.Flags&rar3FlagAddSize != 0 {
			headerRead += 4
		}
		blk := SrrBlock{Type: h.Type, Flags: h.Flags, Offset: blockStart}
		switch h.Type {
		case srrBlockTypeHeader:
			if h.Flags&srrFlagAppNamePresent != 0 {
				name, n, err := readLenPrefixedName(br)
				if err != nil {
					return fmt.Errorf("srr header: %w", err)
				}
				blk.AppName = name
				s.dump.AppName = name
				headerRead += n
			}
			if rest := int64(h.Size) - headerRead; rest > 0 {
				if _, err := br.Discard(int(rest)); err != nil {
					return nil
				}
				headerRead = int64(h.Size)
			}
			pos = blockStart + headerRead
		case srrBlockTypeStoredFile:
			name, n, err := readLenPrefixedName(br)
			if err != nil {
				return fmt.Errorf("srr stored file: %w", err)
			}
			headerRead += n
			if rest := int64(h.Size) - headerRead; rest > 0 {
				if _, err := br.Discard(int(rest)); err != nil {
					return nil
				}
				headerRead = int64(h.Size)
			}
			blk.Name = name
			blk.DataPos = blockStart + headerRead
			blk.DataSize = int64(h.AddSize)
			if blk.DataSize > 0 {
				if _, err := io.CopyN(io.Discard, br, blk.DataSize); err != nil {
					s.dump.Blocks = append(s.dump.Blocks, blk)
					return nil
				}
			}
			pos = blk.DataPos + blk.DataSize
		case srrBlockTypeRarMarker:
			name, n, err := readLenPrefixedName(br)
			if err != nil {
				return fmt.Errorf("srr rar marker: %w", err)
			}
			headerRead += n
			if rest := int64(h.Size) - headerRead; rest > 0 {
				if _, err := br.Discard(int(rest)); err != nil {
					return nil
				}
				headerRead = int64(h.Size)
			}
			blk.Name = name
			inRarSection = true
			pos = blockStart + headerRead
		default:
			// Inside a rar section the original data was stripped, so only
			// the declared header bytes are present regardless of addsize.
			skip := int64(h.Size) - 7
			if !inRarSection && h.Flags&rar3FlagAddSize != 0 {
				skip += int64(h.AddSize)
			}
			if skip > 0 {
				if _, err := br.Discard(int(skip)); err != nil {
					return nil
				}
			} else {
				skip = 0
			}
			pos = blockStart + headerRead + skip
		}
		blk.HeaderLen = headerRead
		s.dump.Blocks = append(s.dump.Blocks, blk)
	}
}

func readLenPrefixedName(br *bufio.Reader) (string, int64, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return "", 0, err
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])
	name := make([]byte, n)
	if _, err := io.ReadFull(br, name); err != nil {
		return "", 0, err
	}
	return string(name), int64(2 + n), nil
}

func (s *srrReader) Entries(includeRanges bool) ([]Entry, error) {
	if err := s.scan(); err != nil {
		return nil, err
	}
	var entries []Entry
	for _, blk := range s.dump.Blocks {
		switch blk.Type {
		case srrBlockTypeStoredFile:
			e := Entry{Name: blk.Name, UnpackedSize: blk.DataSize}
			if includeRanges && blk.DataSize > 0 {
				e.Range = &Range{Start: blk.DataPos, End: blk.DataPos + blk.DataSize}
			}
			entries = append(entries, e)
		case srrBlockTypeRarMarker:
			// referenced volume; no data stored in the SRR
			entries = append(entries, Entry{Name: blk.Name})
		}
	}
	return entries, nil
}

func (s *srrReader) Dump() (any, error) {
	if err := s.scan(); err != nil {
		return nil, err
	}
	return s.dump, nil
}
