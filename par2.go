package archivenest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// PAR2 packet framing: magic(8) length(8, includes the 64-byte header)
// md5(16) recovery-set-id(16) type(16) body. FileDesc packets carry the
// protected file names and sizes; everything else is parity/recovery data.
var (
	par2Magic        = []byte("PAR2\x00PKT")
	par2TypeFileDesc = []byte("PAR 2.0\x00FileDesc")
)

const par2HeaderLen = 64

// Par2Packet is one parsed packet, kept for dumps.
type Par2Packet struct {
	Offset   int64
	Length   int64
	Type     string
	FileName string // FileDesc packets only
	FileSize int64  // FileDesc packets only
}

// Par2Dump is the structural dump of a PAR2 source.
type Par2Dump struct {
	SetID   [16]byte
	Packets []Par2Packet
}

type par2Reader struct {
	src     *Source
	scanned bool
	scanErr error
	dump    Par2Dump
}

func newPar2Reader(src *Source) *par2Reader { return &par2Reader{src: src} }

func (p *par2Reader) Source() *Source { return p.src }

func (p *par2Reader) FindSignature() (int64, error) {
	buf, err := p.src.Peek(signatureWindow)
	if err != nil {
		return 0, err
	}
	if i := bytes.Index(buf, par2Magic); i >= 0 {
		return int64(i), nil
	}
	return 0, fmt.Errorf("PAR2 packet magic not found in first %d bytes", signatureWindow)
}

func (p *par2Reader) scan() error {
	if p.scanned {
		return p.scanErr
	}
	p.scanned = true
	p.scanErr = p.doScan()
	return p.scanErr
}

func (p *par2Reader) doScan() error {
	pos, err := p.FindSignature()
	if err != nil {
		return err
	}
	size := p.src.Size()
	for pos+par2HeaderLen <= size {
		var hdr [par2HeaderLen]byte
		if _, err := p.src.ReadAt(hdr[:], pos); err != nil && err != io.EOF {
			return fmt.Errorf("read packet header at %d: %w", pos, err)
		}
		if !bytes.Equal(hdr[0:8], par2Magic) {
			// tolerate trailing junk after the last well-formed packet
			return nil
		}
		length := int64(binary.LittleEndian.Uint64(hdr[8:16]))
		if length < par2HeaderLen || length%4 != 0 || pos+length > size {
			return fmt.Errorf("bad packet length %d at %d", length, pos)
		}
		pkt := Par2Packet{Offset: pos, Length: length, Type: packetTypeString(hdr[48:64])}
		copy(p.dump.SetID[:], hdr[32:48])
		if bytes.Equal(hdr[48:64], par2TypeFileDesc) {
			body, err := p.src.ReadRange(Range{Start: pos + par2HeaderLen, End: pos + length})
			if err != nil {
				return fmt.Errorf("read FileDesc body at %d: %w", pos, err)
			}
			// body: fileid(16) md5(16) md5-16k(16) length(8) name(padded)
			if len(body) < 56 {
				return fmt.Errorf("FileDesc body too short at %d", pos)
			}
			pkt.FileSize = int64(binary.LittleEndian.Uint64(body[48:56]))
			pkt.FileName = string(bytes.TrimRight(body[56:], "\x00"))
		}
		p.dump.Packets = append(p.dump.Packets, pkt)
		pos += length
	}
	if len(p.dump.Packets) == 0 {
		return fmt.Errorf("no PAR2 packets found")
	}
	return nil
}

func packetTypeString(t []byte) string {
	return string(bytes.TrimRight(t, "\x00"))
}

func (p *par2Reader) Entries(bool) ([]Entry, error) {
	if err := p.scan(); err != nil {
		return nil, err
	}
	var entries []Entry
	for _, pkt := range p.dump.Packets {
		if pkt.FileName == "" {
			continue
		}
		// recovery sets describe files; the protected bytes live elsewhere
		entries = append(entries, Entry{Name: pkt.FileName, UnpackedSize: pkt.FileSize})
	}
	return entries, nil
}

func (p *par2Reader) Dump() (any, error) {
	if err := p.scan(); err != nil {
		return nil, err
	}
	return p.dump, nil
}
