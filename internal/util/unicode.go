// Package util carries small text helpers needed by the RAR3 reader.
package util

// DecodeRar3Unicode reconstructs a RAR3 unicode file name from its ASCII
// portion plus the packed unicode stream. The stream interleaves 2-bit
// opcodes (take ASCII byte, take literal low byte, combine with the current
// high byte, set the high byte); flag bytes with the top bit set extend the
// opcode run. Leftover ASCII bytes are appended verbatim.
func DecodeRar3Unicode(ascii, packed []byte) string {
	if len(packed) == 0 {
		return string(ascii)
	}
	out := make([]rune, 0, len(ascii))
	ai, pi := 0, 0
	var high byte
	for pi < len(packed) {
		flags := packed[pi]
		pi++
		bits := uint(flags)
		count := 4
		if flags&0x80 != 0 {
			n := 1
			for (bits&(0x80>>n) != 0) && pi < len(packed) {
				bits = ((bits & ((0x80 >> n) - 1)) << 8) | uint(packed[pi])
				pi++
				n++
			}
			count = n * 4
		}
		for i := 0; i < count; i++ {
			if ai >= len(ascii) && pi >= len(packed) {
				break
			}
			switch (bits >> (i * 2)) & 0x03 {
			case 0:
				if ai < len(ascii) {
					out = append(out, rune(ascii[ai]))
					ai++
				}
			case 1:
				if pi < len(packed) {
					out = append(out, rune(packed[pi]))
					pi++
				}
			case 2:
				if pi < len(packed) {
					out = append(out, rune(uint16(packed[pi])|uint16(high)<<8))
					pi++
				}
			case 3:
				if pi < len(packed) {
					high = packed[pi]
					pi++
				}
			}
		}
	}
	for ; ai < len(ascii); ai++ {
		out = append(out, rune(ascii[ai]))
	}
	return string(out)
}
