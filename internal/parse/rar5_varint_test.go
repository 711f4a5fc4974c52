package parse

import (
	"bufio"
	"bytes"
	"testing"
)

func TestReadVarint(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader([]byte{0xAC, 0x02})) // 300
	v, n, err := ReadVarint(br)
	if err != nil || v != 300 || n != 2 {
		t.Fatalf("unexpected v=%d n=%d err=%v", v, n, err)
	}
}

func TestReadVarintEOF(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader(nil))
	if _, _, err := ReadVarint(br); err == nil {
		t.Fatalf("expected EOF error")
	}
}

func TestReadVarintTooLong(t *testing.T) {
	// 10 continuation bytes can never terminate
	br := bufio.NewReader(bytes.NewReader(bytes.Repeat([]byte{0x80}, 10)))
	if _, _, err := ReadVarint(br); err == nil {
		t.Fatalf("expected too long error")
	}
}

func TestReadVarintFromSlice(t *testing.T) {
	if v, n, err := ReadVarintFromSlice([]byte{0xAC, 0x02}); err != nil || v != 300 || n != 2 {
		t.Fatalf("decode failed v=%d n=%d err=%v", v, n, err)
	}
	if _, _, err := ReadVarintFromSlice(nil); err == nil {
		t.Fatalf("expected error on empty input")
	}
	if _, n, err := ReadVarintFromSlice(bytes.Repeat([]byte{0x80}, 9)); err == nil || n != 9 {
		t.Fatalf("expected truncated error, n=%d err=%v", n, err)
	}
	if _, n, err := ReadVarintFromSlice(bytes.Repeat([]byte{0x80}, 10)); err == nil || n != 10 {
		t.Fatalf("expected too long error, n=%d err=%v", n, err)
	}
}
