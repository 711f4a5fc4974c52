package archivenest

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// SFV is a plain-text checksum listing: one "name CRC32HEX" pair per line,
// ';' starts a comment. Files are frequently written by Windows tools in
// windows-1252, so non-UTF-8 lines are decoded through that charmap.
var sfvLineRe = regexp.MustCompile(`^(\S.*?)\s+([0-9a-fA-F]{8})\s*$`)

// SfvRecord is one checksum line, kept for dumps.
type SfvRecord struct {
	Name   string
	CRC32  uint32
	Line   int   // 1-based line number
	Offset int64 // byte offset of the line start
}

// SfvDump is the structural dump of an SFV source.
type SfvDump struct {
	Comments []string
	Records  []SfvRecord
}

type sfvReader struct {
	src     *Source
	scanned bool
	scanErr error
	sigPos  int64
	dump    SfvDump
}

func newSfvReader(src *Source) *sfvReader { return &sfvReader{src: src} }

func (s *sfvReader) Source() *Source { return s.src }

// FindSignature returns the byte offset of the first well-formed checksum
// line within the scan window. A text format has no magic bytes; the first
// parseable line is the closest equivalent.
func (s *sfvReader) FindSignature() (int64, error) {
	if err := s.scan(); err != nil {
		return 0, err
	}
	return s.sigPos, nil
}

func (s *sfvReader) scan() error {
	if s.scanned {
		return s.scanErr
	}
	s.scanned = true
	s.scanErr = s.doScan()
	return s.scanErr
}

func (s *sfvReader) doScan() error {
	br := bufio.NewReader(s.src.Reader())
	var offset int64
	lineNo := 0
	first := true
	for {
		line, err := br.ReadString('\n')
		if len(line) == 0 && err != nil {
			break
		}
		lineNo++
		lineStart := offset
		offset += int64(len(line))
		text := decodeSfvLine(strings.TrimRight(line, "\r\n"))
		trimmed := strings.TrimSpace(text)
		switch {
		case trimmed == "":
		case strings.HasPrefix(trimmed, ";"):
			s.dump.Comments = append(s.dump.Comments, strings.TrimSpace(trimmed[1:]))
		default:
			m := sfvLineRe.FindStringSubmatch(text)
			if m == nil {
				if len(s.dump.Records) == 0 {
					// garbage before any checksum line disqualifies the source
					return fmt.Errorf("not an SFV listing: unparseable line %d", lineNo)
				}
				continue
			}
			crc, perr := strconv.ParseUint(m[2], 16, 32)
			if perr != nil {
				continue
			}
			if first {
				s.sigPos = lineStart
				first = false
			}
			s.dump.Records = append(s.dump.Records, SfvRecord{
				Name:   m[1],
				CRC32:  uint32(crc),
				Line:   lineNo,
				Offset: lineStart,
			})
		}
		if err != nil {
			break
		}
	}
	if len(s.dump.Records) == 0 {
		return fmt.Errorf("no checksum lines found")
	}
	return nil
}

func decodeSfvLine(line string) string {
	if utf8.ValidString(line) {
		return line
	}
	decoded, err := charmap.Windows1252.NewDecoder().String(line)
	if err != nil {
		return line
	}
	return decoded
}

func (s *sfvReader) Entries(bool) ([]Entry, error) {
	if err := s.scan(); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(s.dump.Records))
	for _, rec := range s.dump.Records {
		// checksum listings name files; no bytes are addressable
		entries = append(entries, Entry{Name: rec.Name, CRC: rec.CRC32})
	}
	return entries, nil
}

func (s *sfvReader) Dump() (any, error) {
	if err := s.scan(); err != nil {
		return nil, err
	}
	return s.dump, nil
}
