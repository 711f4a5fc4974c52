package archivenest

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/javi11/archivenest/internal/parse"
)

// RAR5 block layout (simplified):
//  CRC32(4) | HEAD_SIZE(varint) | BLOCK_TYPE(varint) | FLAGS(varint) |
//  [EXTRA_AREA_SIZE(varint)] | [DATA_SIZE(varint)] | block fields... | EXTRA_AREA
// HEAD_SIZE counts bytes from BLOCK_TYPE to the end of the header (extra area
// included), NOT the leading CRC or the HEAD_SIZE field itself.
// FLAGS bit0 => extra area present (at the END of the header).
// FLAGS bit1 => data section of DATA_SIZE bytes follows the header.

const (
	rar5BlockTypeCrypt = 4
	rar5BlockTypeFile  = 2
	rar5BlockTypeEnd   = 5

	rar5FileFlagDir   = 0x0001
	rar5FileFlagMtime = 0x0002
	rar5FileFlagCRC   = 0x0004

	rar5ExtraRecCrypt = 0x01
)

func parseRar5(br *bufio.Reader, dump *RarDump, baseOffset, fileSize int64) error {
	if _, err := br.Discard(8); err != nil {
		return fmt.Errorf("discard signature: %w", err)
	}
	pos := baseOffset + 8
	for {
		if fileSize > 0 && pos >= fileSize {
			return nil
		}
		hdrStart := pos
		var crc [4]byte
		if _, err := io.ReadFull(br, crc[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("read block crc at %d: %w", pos, err)
		}
		pos += 4
		headSize, headSizeLen, err := parse.ReadVarint(br)
		if err != nil {
			return fmt.Errorf("read headSize at %d: %w", pos, err)
		}
		pos += headSizeLen
		if headSize == 0 { // tolerant: treat as end marker / padding
			return nil
		}
		if headSize > 2*1024*1024 {
			return fmt.Errorf("suspicious headSize %d at %d", headSize, hdrStart)
		}
		if fileSize > 0 && pos+int64(headSize) > fileSize { // truncated / misaligned -> stop gracefully
			return nil
		}
		headData := make([]byte, headSize)
		if _, err := io.ReadFull(br, headData); err != nil {
			return fmt.Errorf("read headData size=%d at %d: %w", headSize, hdrStart, err)
		}
		pos += int64(headSize)
		cur := 0
		readVar := func() (uint64, error) {
			v, n, e := parse.ReadVarintFromSlice(headData[cur:])
			if e != nil {
				return 0, e
			}
			cur += int(n)
			return v, nil
		}
		blockType, err := readVar()
		if err != nil {
			return fmt.Errorf("blockType: %w", err)
		}
		flags, err := readVar()
		if err != nil {
			return fmt.Errorf("flags: %w", err)
		}
		var extraAreaSize, dataSize uint64
		if flags&0x0001 != 0 {
			if extraAreaSize, err = readVar(); err != nil {
				return fmt.Errorf("extraAreaSize: %w", err)
			}
		}
		if flags&0x0002 != 0 {
			if dataSize, err = readVar(); err != nil {
				return fmt.Errorf("dataSize: %w", err)
			}
		}
		// Extra area sits at the end of the header; block-specific fields end
		// before it.
		blockSpecificEnd := int(headSize)
		if extraAreaSize > 0 {
			if extraAreaSize > uint64(blockSpecificEnd-cur) {
				return fmt.Errorf("extraAreaSize overflow %d > %d", extraAreaSize, blockSpecificEnd-cur)
			}
			blockSpecificEnd -= int(extraAreaSize)
		}
		switch blockType {
		case rar5BlockTypeCrypt:
			dump.EncryptedHeaders = true
			return nil
		case rar5BlockTypeFile:
			if blockSpecificEnd < cur {
				return fmt.Errorf("blockSpecificEnd<cur")
			}
			fb, err := parseRar5FileFields(headData[cur:blockSpecificEnd])
			if err != nil {
				return err
			}
			fb.HeaderPos = hdrStart
			fb.HeaderSize = 4 + headSizeLen + int64(headSize)
			fb.DataPos = hdrStart + fb.HeaderSize
			fb.PackedSize = int64(dataSize)
			if extraAreaSize > 0 {
				fb.Encrypted = fb.Encrypted || rar5ExtraHasCrypt(headData[blockSpecificEnd:int(headSize)])
			}
			dump.Blocks = append(dump.Blocks, fb)
		case rar5BlockTypeEnd:
			return nil
		}
		// Skip the data section.
		if dataSize > 0 {
			if _, err := io.CopyN(io.Discard, br, int64(dataSize)); err != nil {
				return fmt.Errorf("discard data: %w", err)
			}
			pos += int64(dataSize)
		}
	}
}

func parseRar5FileFields(bs []byte) (FileBlock, error) {
	bcur := 0
	readVar := func() (uint64, error) {
		v, n, e := parse.ReadVarintFromSlice(bs[bcur:])
		if e != nil {
			return 0, e
		}
		bcur += int(n)
		return v, nil
	}
	fileFlags, err := readVar()
	if err != nil {
		return FileBlock{}, fmt.Errorf("fileFlags: %w", err)
	}
	unpSize, err := readVar()
	if err != nil {
		return FileBlock{}, fmt.Errorf("unpackedSize: %w", err)
	}
	if _, err := readVar(); err != nil { // attributes
		return FileBlock{}, fmt.Errorf("fileAttr: %w", err)
	}
	if fileFlags&rar5FileFlagMtime != 0 {
		if len(bs)-bcur < 4 {
			return FileBlock{}, fmt.Errorf("mtime truncated")
		}
		bcur += 4
	}
	if fileFlags&rar5FileFlagCRC != 0 {
		if len(bs)-bcur < 4 {
			return FileBlock{}, fmt.Errorf("crc32 truncated")
		}
		bcur += 4
	}
	compInfo, err := readVar()
	if err != nil {
		return FileBlock{}, fmt.Errorf("compInfo: %w", err)
	}
	if _, err := readVar(); err != nil { // host OS
		return FileBlock{}, fmt.Errorf("hostOS: %w", err)
	}
	nameLen, err := readVar()
	if err != nil {
		return FileBlock{}, fmt.Errorf("nameLen: %w", err)
	}
	if nameLen == 0 || int(nameLen) > len(bs)-bcur {
		return FileBlock{}, fmt.Errorf("bad nameLen %d", nameLen)
	}
	name := string(bs[bcur : bcur+int(nameLen)])
	// compression method lives in bits 7..9 of compInfo; 0 means stored
	return FileBlock{
		Name:         name,
		Dir:          fileFlags&rar5FileFlagDir != 0,
		UnpackedSize: int64(unpSize),
		Stored:       (compInfo>>7)&0x7 == 0,
	}, nil
}

// rar5ExtraHasCrypt scans a file header's extra area for a file encryption
// record (type 0x01).
func rar5ExtraHasCrypt(extra []byte) bool {
	cur := 0
	for cur < len(extra) {
		size, n, err := parse.ReadVarintFromSlice(extra[cur:])
		if err != nil || size == 0 {
			return false
		}
		recStart := cur + int(n)
		recEnd := recStart + int(size)
		if recEnd > len(extra) {
			return false
		}
		typ, _, err := parse.ReadVarintFromSlice(extra[recStart:recEnd])
		if err != nil {
			return false
		}
		if typ == rar5ExtraRecCrypt {
			return true
		}
		cur = recEnd
	}
	return false
}
