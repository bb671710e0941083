package fat32

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ostafen/digfat32/internal/fat32/fat32test"
)

func openFATTestFile(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		f.Close()
		os.Remove(path)
	})
	return f
}

func newTestFAT(t *testing.T, b *fat32test.Builder) (*FAT, *BPB) {
	t.Helper()
	bpb, err := ParseBPB(b.Bytes()[:BPBSize])
	require.NoError(t, err)

	path, err := b.WriteTempFile("fat32test-fat-*.img")
	require.NoError(t, err)
	f := openFATTestFile(t, path)

	return NewFAT(f, bpb), bpb
}

func TestFAT_SetGetEntry(t *testing.T) {
	b := fat32test.NewBuilder(0)
	fat, _ := newTestFAT(t, b)

	require.NoError(t, fat.SetEntry(10, 11))
	entry, err := fat.GetEntry(10)
	require.NoError(t, err)
	require.Equal(t, uint32(11), entry.cluster())
}

func TestFAT_GetNthEntry_Chain(t *testing.T) {
	b := fat32test.NewBuilder(0)
	b.SetFATEntry(100, 101)
	b.SetFATEntry(101, 102)
	b.SetFATEntry(102, 103)
	b.SetFATEntry(103, 104)
	b.SetFATEntry(104, Entry(entryEOC))

	fat, _ := newTestFAT(t, b)

	c, err := fat.GetNthEntry(100, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(100), c)

	c, err = fat.GetNthEntry(100, 4)
	require.NoError(t, err)
	require.Equal(t, uint32(104), c)
}

func TestFAT_GetNthEntry_ChainEndedEarly(t *testing.T) {
	b := fat32test.NewBuilder(0)
	b.SetFATEntry(200, Entry(entryEOC))

	fat, _ := newTestFAT(t, b)

	_, err := fat.GetNthEntry(200, 1)
	require.Error(t, err)
	require.Equal(t, KindClusterChainEnded, KindOf(err))
}

func TestFAT_GetNthEntry_DetectsCycle(t *testing.T) {
	b := fat32test.NewBuilder(0)
	b.SetFATEntry(300, 301)
	b.SetFATEntry(301, 300)

	fat, _ := newTestFAT(t, b)

	_, err := fat.GetNthEntry(300, 5)
	require.Error(t, err)
	require.Equal(t, KindInvalidFS, KindOf(err))
}

func TestFAT_FindFreeCluster_AdvancesHint(t *testing.T) {
	b := fat32test.NewBuilder(0)
	fat, _ := newTestFAT(t, b)

	first, err := fat.FindFreeCluster()
	require.NoError(t, err)

	second, err := fat.FindFreeCluster()
	require.NoError(t, err)
	require.Greater(t, second, first)
}

func TestFAT_FreeChain(t *testing.T) {
	b := fat32test.NewBuilder(0)
	b.SetFATEntry(400, 401)
	b.SetFATEntry(401, 402)
	b.SetFATEntry(402, Entry(entryEOC))

	fat, _ := newTestFAT(t, b)

	require.NoError(t, fat.FreeChain(400))

	for _, c := range []uint32{400, 401, 402} {
		e, err := fat.GetEntry(c)
		require.NoError(t, err)
		require.True(t, e.isFree())
	}
}

func TestFAT_FreeChain_DetectsCycle(t *testing.T) {
	b := fat32test.NewBuilder(0)
	b.SetFATEntry(500, 501)
	b.SetFATEntry(501, 500)

	fat, _ := newTestFAT(t, b)

	err := fat.FreeChain(500)
	require.Error(t, err)
	require.Equal(t, KindInvalidFS, KindOf(err))
}

func TestFAT_MarkClusterLast(t *testing.T) {
	b := fat32test.NewBuilder(0)
	b.SetFATEntry(600, 601)

	fat, _ := newTestFAT(t, b)

	require.NoError(t, fat.MarkClusterLast(600))
	e, err := fat.GetEntry(600)
	require.NoError(t, err)
	require.True(t, e.isEnd())
}
