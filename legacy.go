package archivenest

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/javi11/archivenest/internal/util"
)

// scanLegacy is a lenient fallback for RAR 1.5/2.x layouts the strict RAR3
// walk rejects: scan for the first plausible file header (type 0x74) after the
// signature. Caller positions br at baseOffset+8.
func scanLegacy(br *bufio.Reader, dump *RarDump, baseOffset int64) error {
	// Legacy headers appear near the start; 64 KiB is typically sufficient.
	const scanLimit = 64 * 1024
	peekBuf, _ := br.Peek(scanLimit)
	searchStart := 0
	for searchStart < len(peekBuf) {
		p := bytes.IndexByte(peekBuf[searchStart:], rar3BlockTypeFile)
		if p < 0 {
			break
		}
		typePos := searchStart + p
		hdrStart := typePos - 2
		if hdrStart < 0 || hdrStart+7 > len(peekBuf) {
			searchStart = typePos + 1
			continue
		}
		flags := binary.LittleEndian.Uint16(peekBuf[hdrStart+3 : hdrStart+5])
		size := binary.LittleEndian.Uint16(peekBuf[hdrStart+5 : hdrStart+7])
		if size < 32 {
			searchStart = typePos + 1
			continue
		}
		headEnd := hdrStart + int(size)
		if headEnd > len(peekBuf) {
			break
		}
		fixedStart := hdrStart + 7
		if fixedStart+25 > headEnd {
			searchStart = typePos + 1
			continue
		}
		fixed := peekBuf[fixedStart : fixedStart+25]
		packSize := int64(binary.LittleEndian.Uint32(fixed[0:4]))
		unpSize := int64(binary.LittleEndian.Uint32(fixed[4:8]))
		method := fixed[18]
		nameSize := binary.LittleEndian.Uint16(fixed[19:21])
		offset := fixedStart + 25
		if flags&rar3FlagHighSize != 0 {
			if offset+8 > headEnd {
				searchStart = typePos + 1
				continue
			}
			packSize |= int64(binary.LittleEndian.Uint32(peekBuf[offset:offset+4])) << 32
			unpSize |= int64(binary.LittleEndian.Uint32(peekBuf[offset+4:offset+8])) << 32
			offset += 8
		}
		if offset+int(nameSize) > headEnd {
			searchStart = typePos + 1
			continue
		}
		nameField := peekBuf[offset : offset+int(nameSize)]
		var name string
		if flags&rar3FlagUnicode != 0 {
			if zero := indexByte(nameField, 0); zero >= 0 {
				name = util.DecodeRar3Unicode(nameField[:zero], nameField[zero+1:])
			} else {
				name = string(nameField)
			}
		} else {
			name = string(nameField)
		}
		fileHeaderPos := baseOffset + 8 + int64(hdrStart)
		dump.Blocks = append(dump.Blocks, FileBlock{
			Name:         name,
			HeaderPos:    fileHeaderPos,
			HeaderSize:   int64(size),
			DataPos:      fileHeaderPos + int64(size),
			PackedSize:   packSize,
			UnpackedSize: unpSize,
			Stored:       method == 0x30,
			Encrypted:    flags&rar3FlagEncrypted != 0,
		})
		return nil
	}
	return fmt.Errorf("legacy scan: no file header found")
}
