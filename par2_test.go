package archivenest

import (
	"encoding/binary"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// buildPar2Packet pads the body to a multiple of 4 so the declared length
// stays valid.
func buildPar2Packet(pktType string, body []byte) []byte {
	for len(body)%4 != 0 {
		body = append(body, 0)
	}
	b := make([]byte, 0, par2HeaderLen+len(body))
	b = append(b, par2Magic...)
	b = binary.LittleEndian.AppendUint64(b, uint64(par2HeaderLen+len(body)))
	b = append(b, make([]byte, 16)...) // md5, not validated
	setID := bytes16(0xAB)
	b = append(b, setID[:]...)
	typ := make([]byte, 16)
	copy(typ, pktType)
	b = append(b, typ...)
	return append(b, body...)
}

func bytes16(fill byte) (out [16]byte) {
	for i := range out {
		out[i] = fill
	}
	return out
}

func buildPar2FileDesc(name string, size int64) []byte {
	body := make([]byte, 0, 56+len(name))
	body = append(body, make([]byte, 48)...) // fileid + md5 + md5-16k
	body = binary.LittleEndian.AppendUint64(body, uint64(size))
	body = append(body, name...)
	return buildPar2Packet("PAR 2.0\x00FileDesc", body)
}

func newPar2Source(t *testing.T, b []byte) *par2Reader {
	t.Helper()
	return newPar2Reader(NewBufferSource(afero.NewMemMapFs(), b))
}

func TestPar2FileDescEntries(t *testing.T) {
	raw := buildPar2Packet("PAR 2.0\x00Main", make([]byte, 12))
	raw = append(raw, buildPar2FileDesc("group-movie.mkv", 1<<30)...)
	raw = append(raw, buildPar2FileDesc("group-movie.nfo", 1234)...)

	p := newPar2Source(t, raw)
	pos, err := p.FindSignature()
	require.NoError(t, err)
	require.Zero(t, pos)

	entries, err := p.Entries(true)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "group-movie.mkv", entries[0].Name)
	require.Equal(t, int64(1<<30), entries[0].UnpackedSize)
	require.Equal(t, "group-movie.nfo", entries[1].Name)
	require.Nil(t, entries[0].Range, "protected bytes live outside the par2 set")
}

func TestPar2Dump(t *testing.T) {
	raw := buildPar2Packet("PAR 2.0\x00Main", make([]byte, 12))
	raw = append(raw, buildPar2FileDesc("a.bin", 5)...)

	p := newPar2Source(t, raw)
	d, err := p.Dump()
	require.NoError(t, err)
	dump, ok := d.(Par2Dump)
	require.True(t, ok)
	require.Len(t, dump.Packets, 2)
	require.Equal(t, "PAR 2.0\x00Main", dump.Packets[0].Type)
	require.Equal(t, bytes16(0xAB), dump.SetID)
	require.Equal(t, dump.Packets[0].Length, dump.Packets[1].Offset)
}

func TestPar2TrailingJunkTolerated(t *testing.T) {
	raw := buildPar2FileDesc("a.bin", 5)
	raw = append(raw, []byte("trailing recovery slice junk")...)

	p := newPar2Source(t, raw)
	entries, err := p.Entries(true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPar2BadPacketLength(t *testing.T) {
	raw := buildPar2FileDesc("a.bin", 5)
	// corrupt the declared length so it overruns the source
	binary.LittleEndian.PutUint64(raw[8:16], 1<<40)

	p := newPar2Source(t, raw)
	_, err := p.Entries(true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad packet length")
}

func TestPar2NoMagic(t *testing.T) {
	p := newPar2Source(t, []byte("not a par2 file, just text padding"))
	_, err := p.FindSignature()
	require.Error(t, err)
}

func TestPar2NamePaddingStripped(t *testing.T) {
	// NUL padding appended for alignment must not leak into the name
	raw := buildPar2FileDesc("ab.bin", 9)
	p := newPar2Source(t, raw)
	entries, err := p.Entries(true)
	require.NoError(t, err)
	require.Equal(t, "ab.bin", entries[0].Name)
}
