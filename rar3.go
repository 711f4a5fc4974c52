package archivenest

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/javi11/archivenest/internal/util"
)

// RAR3 block header layout:
//  2 bytes CRC
//  1 byte  type
//  2 bytes flags
//  2 bytes size (header only, excluding the optional addsize field)
//  (optional) addsize (4 bytes) if bit 0x8000 in flags
// File header (type=0x74) has additional fixed fields.

const (
	rar3BlockTypeMain = 0x73
	rar3BlockTypeFile = 0x74
	rar3BlockTypeEnd  = 0x7B

	rar3FlagAddSize   = 0x8000
	rar3FlagSalt      = 0x0400
	rar3FlagUnicode   = 0x0200
	rar3FlagHighSize  = 0x0100
	rar3FlagEncrypted = 0x0004
	rar3FlagDirMask   = 0x00E0

	rar3MainFlagEncryptedHeaders = 0x0080
)

type rar3BlockHeader struct {
	CRC     uint16
	Type    byte
	Flags   uint16
	Size    uint16
	AddSize uint32 // only if flags & 0x8000
}

func parseRar3(br *bufio.Reader, dump *RarDump, baseOffset, fileSize int64) error {
	// skip signature (7 + 1 null)
	if _, err := br.Discard(8); err != nil {
		return err
	}
	pos := baseOffset + 8
	for {
		if fileSize > 0 && pos+7 > fileSize {
			return nil
		}
		hdrStart := pos
		h, err := readRar3BlockHeader(br)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
		headerRead := int64(7)
		if h.Flags&rar3FlagAddSize != 0 {
			headerRead += 4
		}
		if h.Type == rar3BlockTypeMain && h.Flags&rar3MainFlagEncryptedHeaders != 0 {
			dump.EncryptedHeaders = true
			return nil
		}
		switch h.Type {
		case rar3BlockTypeFile:
			fb, err := parseRar3FileHeader(br, hdrStart, h)
			if err != nil {
				return err
			}
			dump.Blocks = append(dump.Blocks, fb)
			// file data follows the header; skip to the next block
			pos = fb.DataPos + fb.PackedSize
			if fb.PackedSize > 0 {
				if _, err := br.Discard(int(fb.PackedSize)); err != nil {
					return nil
				}
			}
		case rar3BlockTypeEnd:
			return nil
		default:
			// Size excludes the addsize field itself; the block body is
			// AddSize additional bytes when the flag is set.
			toSkip := int64(h.Size) - 7
			if h.Flags&rar3FlagAddSize != 0 {
				toSkip += int64(h.AddSize)
			}
			if toSkip > 0 {
				if _, err := br.Discard(int(toSkip)); err != nil {
					return nil
				}
			} else {
				toSkip = 0
			}
			pos += headerRead + toSkip
		}
	}
}

func readRar3BlockHeader(br *bufio.Reader) (*rar3BlockHeader, error) {
	var raw [7]byte
	if _, err := io.ReadFull(br, raw[:]); err != nil {
		return nil, err
	}
	h := &rar3BlockHeader{
		CRC:   binary.LittleEndian.Uint16(raw[0:2]),
		Type:  raw[2],
		Flags: binary.LittleEndian.Uint16(raw[3:5]),
		Size:  binary.LittleEndian.Uint16(raw[5:7]),
	}
	if h.Flags&rar3FlagAddSize != 0 {
		var add [4]byte
		if _, err := io.ReadFull(br, add[:]); err != nil {
			return nil, err
		}
		h.AddSize = binary.LittleEndian.Uint32(add[:])
	}
	return h, nil
}

func parseRar3FileHeader(br *bufio.Reader, hdrStart int64, bh *rar3BlockHeader) (FileBlock, error) {
	// RAR3 file header layout after the block header fields:
	// PACK_SIZE (4), UNP_SIZE (4), HOST_OS(1), FILE_CRC(4), FTIME(4),
	// UNP_VER(1), METHOD(1), NAME_SIZE(2), ATTR(4)
	var fixed [25]byte
	if _, err := io.ReadFull(br, fixed[:]); err != nil {
		return FileBlock{}, err
	}
	packSize := int64(binary.LittleEndian.Uint32(fixed[0:4]))
	unpSize := int64(binary.LittleEndian.Uint32(fixed[4:8]))
	method := fixed[18]
	nameSize := binary.LittleEndian.Uint16(fixed[19:21])

	headerSize := int64(7)
	if bh.Flags&rar3FlagAddSize != 0 {
		headerSize += 4
	}
	declared := headerSize - 7 + int64(bh.Size) // addsize field is not counted in Size
	headerSize += 25

	if bh.Flags&rar3FlagHighSize != 0 {
		var high [8]byte
		if _, err := io.ReadFull(br, high[:]); err != nil {
			return FileBlock{}, err
		}
		packSize |= int64(binary.LittleEndian.Uint32(high[0:4])) << 32
		unpSize |= int64(binary.LittleEndian.Uint32(high[4:8])) << 32
		headerSize += 8
	}

	nameField := make([]byte, nameSize)
	if _, err := io.ReadFull(br, nameField); err != nil {
		return FileBlock{}, err
	}
	headerSize += int64(nameSize)
	name := decodeRar3Name(nameField, bh.Flags)

	if bh.Flags&rar3FlagSalt != 0 {
		if _, err := br.Discard(8); err != nil {
			return FileBlock{}, err
		}
		headerSize += 8
	}
	// Skip declared header bytes we did not account for (extended time area).
	if rest := declared - headerSize; rest > 0 {
		if _, err := br.Discard(int(rest)); err != nil {
			return FileBlock{}, err
		}
		headerSize = declared
	}

	return FileBlock{
		Name:         name,
		Dir:          bh.Flags&rar3FlagDirMask == rar3FlagDirMask,
		HeaderPos:    hdrStart,
		HeaderSize:   headerSize,
		DataPos:      hdrStart + headerSize,
		PackedSize:   packSize,
		UnpackedSize: unpSize,
		Stored:       method == 0x30, // '0' stored
		Encrypted:    bh.Flags&rar3FlagEncrypted != 0,
	}, nil
}

func decodeRar3Name(nameField []byte, flags uint16) string {
	if flags&rar3FlagUnicode != 0 {
		if zero := indexByte(nameField, 0); zero >= 0 {
			return util.DecodeRar3Unicode(nameField[:zero], nameField[zero+1:])
		}
	}
	return string(nameField)
}

func indexByte(b []byte, target byte) int {
	for i, c := range b {
		if c == target {
			return i
		}
	}
	return -1
}
