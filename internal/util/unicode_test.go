package util

import "testing"

func TestDecodeRar3UnicodeASCIIOnly(t *testing.T) {
	if got := DecodeRar3Unicode([]byte("abc"), nil); got != "abc" {
		t.Fatalf("want abc got %q", got)
	}
}

func TestDecodeRar3UnicodeOpcodes(t *testing.T) {
	// opcode 0: copy ASCII
	if got := DecodeRar3Unicode([]byte("test"), []byte{0x00}); got != "test" {
		t.Fatalf("want test got %q", got)
	}
	// opcode 1: literal low byte
	if got := DecodeRar3Unicode(nil, []byte{0x01, 'Z'}); got != "Z" {
		t.Fatalf("want Z got %q", got)
	}
	// opcode 3 then 2: set high byte 0x04, combine with low 0x05
	if got := DecodeRar3Unicode(nil, []byte{0x0B, 0x04, 0x05}); got != string(rune(0x0405)) {
		t.Fatalf("unexpected %q", got)
	}
	// extended flag byte with exhausted stream falls back to ASCII
	if got := DecodeRar3Unicode([]byte("x"), []byte{0x80}); got != "x" {
		t.Fatalf("want x got %q", got)
	}
}
