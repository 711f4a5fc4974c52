// Package parse holds low-level binary decoding helpers shared by the
// format readers.
package parse

import (
	"bufio"
	"errors"
	"io"
)

// maxVarintLen bounds RAR5 varints; encoded values never need more bytes.
const maxVarintLen = 10

var errVarintTooLong = errors.New("varint too long or truncated")

// ReadVarintFromSlice decodes a RAR5 variable-length integer from b and
// returns the value and the number of bytes consumed.
func ReadVarintFromSlice(b []byte) (uint64, int64, error) {
	var val uint64
	var n int64
	for i := 0; i < len(b) && i < maxVarintLen; i++ {
		c := b[i]
		val |= uint64(c&0x7F) << (7 * i)
		n++
		if c&0x80 == 0 {
			return val, n, nil
		}
	}
	if n == 0 {
		return 0, 0, io.ErrUnexpectedEOF
	}
	return 0, n, errVarintTooLong
}

// ReadVarint decodes a RAR5 variable-length integer from br.
func ReadVarint(br *bufio.Reader) (uint64, int64, error) {
	var val uint64
	var n int64
	for i := 0; i < maxVarintLen; i++ {
		c, err := br.ReadByte()
		if err != nil {
			return 0, n, err
		}
		val |= uint64(c&0x7F) << (7 * i)
		n++
		if c&0x80 == 0 {
			return val, n, nil
		}
	}
	return 0, n, errVarintTooLong
}
