package archivenest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ZIP structures are parsed directly so entry data ranges stay addressable;
// archive/zip only exposes decompressing readers and hides raw offsets.
var (
	zipSigLocal   = []byte{0x50, 0x4B, 0x03, 0x04} // local file header
	zipSigCentral = uint32(0x02014b50)
	zipSigEOCD    = uint32(0x06054b50)
)

const (
	zipEOCDFixedLen    = 22
	zipMaxCommentLen   = 0xFFFF
	zipCentralFixedLen = 46
	zipLocalFixedLen   = 30

	zipFlagEncrypted = 0x0001
	zipMethodStored  = 0
)

// ZipRecord is one central directory record, kept for dumps.
type ZipRecord struct {
	Name             string
	Method           uint16
	Flags            uint16
	CRC32            uint32
	CompressedSize   int64
	UncompressedSize int64
	HeaderOffset     int64 // local header offset
	DataOffset       int64 // derived from the local header
}

// ZipDump is the structural dump of a ZIP source.
type ZipDump struct {
	EOCDOffset   int64
	CentralStart int64
	Records      []ZipRecord
}

type zipReader struct {
	src     *Source
	scanned bool
	scanErr error
	dump    ZipDump
}

func newZipReader(src *Source) *zipReader { return &zipReader{src: src} }

func (z *zipReader) Source() *Source { return z.src }

func (z *zipReader) FindSignature() (int64, error) {
	buf, err := z.src.Peek(signatureWindow)
	if err != nil {
		return 0, err
	}
	if i := bytes.Index(buf, zipSigLocal); i >= 0 {
		return int64(i), nil
	}
	return 0, fmt.Errorf("ZIP local header signature not found in first %d bytes", signatureWindow)
}

// findEOCD scans backwards from the tail for the end-of-central-directory
// record, tolerating a trailing comment.
func (z *zipReader) findEOCD() (int64, []byte, error) {
	size := z.src.Size()
	want := int64(zipEOCDFixedLen + zipMaxCommentLen)
	if want > size {
		want = size
	}
	if want < zipEOCDFixedLen {
		return 0, nil, fmt.Errorf("source too small for EOCD (%d bytes)", size)
	}
	tail, err := z.src.ReadRange(Range{Start: size - want, End: size})
	if err != nil {
		return 0, nil, err
	}
	for i := len(tail) - zipEOCDFixedLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(tail[i:i+4]) == zipSigEOCD {
			return size - want + int64(i), tail[i:], nil
		}
	}
	return 0, nil, fmt.Errorf("EOCD record not found")
}

func (z *zipReader) scan() error {
	if z.scanned {
		return z.scanErr
	}
	z.scanned = true
	z.scanErr = z.doScan()
	return z.scanErr
}

func (z *zipReader) doScan() error {
	eocdOff, eocd, err := z.findEOCD()
	if err != nil {
		return err
	}
	z.dump.EOCDOffset = eocdOff
	count := int(binary.LittleEndian.Uint16(eocd[10:12]))
	cdStart := int64(binary.LittleEndian.Uint32(eocd[16:20]))
	z.dump.CentralStart = cdStart

	cd, err := z.src.ReadRange(Range{Start: cdStart, End: eocdOff})
	if err != nil {
		return fmt.Errorf("read central directory: %w", err)
	}
	cur := 0
	for i := 0; i < count; i++ {
		if cur+zipCentralFixedLen > len(cd) {
			return fmt.Errorf("central directory truncated at record %d", i)
		}
		rec := cd[cur:]
		if binary.LittleEndian.Uint32(rec[0:4]) != zipSigCentral {
			return fmt.Errorf("bad central directory signature at record %d", i)
		}
		flags := binary.LittleEndian.Uint16(rec[8:10])
		method := binary.LittleEndian.Uint16(rec[10:12])
		crc := binary.LittleEndian.Uint32(rec[16:20])
		compSize := int64(binary.LittleEndian.Uint32(rec[20:24]))
		uncompSize := int64(binary.LittleEndian.Uint32(rec[24:28]))
		nameLen := int(binary.LittleEndian.Uint16(rec[28:30]))
		extraLen := int(binary.LittleEndian.Uint16(rec[30:32]))
		commentLen := int(binary.LittleEndian.Uint16(rec[32:34]))
		localOff := int64(binary.LittleEndian.Uint32(rec[42:46]))
		if cur+zipCentralFixedLen+nameLen > len(cd) {
			return fmt.Errorf("central directory name truncated at record %d", i)
		}
		name := string(rec[zipCentralFixedLen : zipCentralFixedLen+nameLen])

		dataOff, err := z.localDataOffset(localOff)
		if err != nil {
			return fmt.Errorf("entry %q: %w", name, err)
		}
		z.dump.Records = append(z.dump.Records, ZipRecord{
			Name:             name,
			Method:           method,
			Flags:            flags,
			CRC32:            crc,
			CompressedSize:   compSize,
			UncompressedSize: uncompSize,
			HeaderOffset:     localOff,
			DataOffset:       dataOff,
		})
		cur += zipCentralFixedLen + nameLen + extraLen + commentLen
	}
	return nil
}

// localDataOffset re-reads the local file header; its name/extra lengths may
// differ from the central directory's and determine where the data starts.
func (z *zipReader) localDataOffset(localOff int64) (int64, error) {
	var hdr [zipLocalFixedLen]byte
	if _, err := z.src.ReadAt(hdr[:], localOff); err != nil && err != io.EOF {
		return 0, fmt.Errorf("read local header: %w", err)
	}
	if !bytes.Equal(hdr[0:4], zipSigLocal) {
		return 0, fmt.Errorf("bad local header signature at %d", localOff)
	}
	nameLen := int64(binary.LittleEndian.Uint16(hdr[26:28]))
	extraLen := int64(binary.LittleEndian.Uint16(hdr[28:30]))
	return localOff + zipLocalFixedLen + nameLen + extraLen, nil
}

func (z *zipReader) Entries(includeRanges bool) ([]Entry, error) {
	if err := z.scan(); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(z.dump.Records))
	for _, rec := range z.dump.Records {
		dir := len(rec.Name) > 0 && rec.Name[len(rec.Name)-1] == '/'
		e := Entry{
			Name:         rec.Name,
			Dir:          dir,
			Compressed:   rec.Method != zipMethodStored && !dir,
			Encrypted:    rec.Flags&zipFlagEncrypted != 0,
			UnpackedSize: rec.UncompressedSize,
			CRC:          rec.CRC32,
		}
		if includeRanges && !dir && rec.CompressedSize > 0 {
			e.Range = &Range{Start: rec.DataOffset, End: rec.DataOffset + rec.CompressedSize}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (z *zipReader) Dump() (any, error) {
	if err := z.scan(); err != nil {
		return nil, err
	}
	return z.dump, nil
}
