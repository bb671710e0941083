package fat32_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ostafen/digfat32/internal/fat32"
)

func TestDecodeDirEntry_RoundTrip(t *testing.T) {
	e := &fat32.DirEntry{
		Name:           [11]byte{'R', 'E', 'A', 'D', 'M', 'E', ' ', ' ', 'T', 'X', 'T'},
		Attr:           fat32.AttrArchive,
		FirstClusterHi: 0x0001,
		FirstClusterLo: 0x0002,
		FileSize:       4096,
	}
	raw, err := e.Bytes()
	require.NoError(t, err)
	require.Len(t, raw, fat32.DirEntrySize)

	decoded, err := fat32.DecodeDirEntry(raw)
	require.NoError(t, err)
	require.Equal(t, e.Name, decoded.Name)
	require.Equal(t, e.Attr, decoded.Attr)
	require.Equal(t, uint32(0x00010002), decoded.FirstCluster())
	require.Equal(t, e.FileSize, decoded.FileSize)
}

func TestDecodeDirEntry_WrongSize(t *testing.T) {
	_, err := fat32.DecodeDirEntry(make([]byte, fat32.DirEntrySize-1))
	require.Error(t, err)
	require.Equal(t, fat32.KindInvalidFS, fat32.KindOf(err))
}

func TestDirEntry_Predicates(t *testing.T) {
	file := &fat32.DirEntry{Attr: fat32.AttrArchive}
	require.True(t, file.IsFile())
	require.False(t, file.IsDirectory())

	dir := &fat32.DirEntry{Attr: fat32.AttrDir}
	require.False(t, dir.IsFile())
	require.True(t, dir.IsDirectory())

	lfn := &fat32.DirEntry{Attr: fat32.AttrReadOnly | fat32.AttrHidden | fat32.AttrSystem | fat32.AttrVolumeID}
	require.True(t, lfn.IsLongNameFragment())

	terminator := &fat32.DirEntry{Name: [11]byte{0x00}}
	require.True(t, terminator.IsFree())
	require.True(t, terminator.IsLast())

	freeSlot := &fat32.DirEntry{Name: [11]byte{0xE5}}
	require.True(t, freeSlot.IsFree())
	require.False(t, freeSlot.IsLast())

	dot := &fat32.DirEntry{Name: [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}}
	require.True(t, dot.IsDot())
}

func TestShortName(t *testing.T) {
	cases := []struct {
		name string
		raw  [11]byte
		want string
	}{
		{"base and extension", [11]byte{'R', 'E', 'A', 'D', 'M', 'E', ' ', ' ', 'T', 'X', 'T'}, "README.TXT"},
		{"no extension", [11]byte{'F', 'O', 'O', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}, "FOO"},
		{"all dots", [11]byte{'.', '.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}, "..."},
		{"eight three", [11]byte{'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'B', 'I', 'N'}, "ABCDEFGH.BIN"},
	}
	for _, c := range cases {
		e := &fat32.DirEntry{Name: c.raw}
		require.Equal(t, c.want, fat32.ShortName(e), c.name)
	}
}
