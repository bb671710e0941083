package fat32_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ostafen/digfat32/internal/fat32"
	"github.com/ostafen/digfat32/internal/fat32/fat32test"
)

func buildFileImage(t *testing.T, fileSize uint32) (*fat32.Filesystem, int64) {
	t.Helper()
	b := fat32test.NewBuilder(0)

	b.PutDirEntry(fat32test.RootCluster, 0, &fat32.DirEntry{
		Name: fat32test.ShortNameBytes("F.BIN"), Attr: fat32.AttrArchive,
		FirstClusterLo: 100, FileSize: fileSize,
	})
	b.PutDirEntry(fat32test.RootCluster, 1, &fat32.DirEntry{Name: [11]byte{0x00}})

	b.SetFATEntry(100, 101)
	b.SetFATEntry(101, 102)
	b.SetFATEntry(102, 103)
	b.SetFATEntry(103, 104)
	b.SetFATEntry(104, fat32.Entry(0x0FFFFFF8))

	offset := b.ClusterOffset(fat32test.RootCluster)

	fs := openTestFS(t, b)
	return fs, offset
}

func TestObject_Delete(t *testing.T) {
	clusterSize := uint32(fat32test.BytesPerSector * fat32test.SectorsPerCluster)
	fs, _ := buildFileImage(t, 5*clusterSize)

	obj, err := fs.GetObject("/f.bin")
	require.NoError(t, err)
	require.NotNil(t, obj)

	require.NoError(t, obj.Delete())

	again, err := fs.GetObject("/f.bin")
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestObject_Truncate_ToZero_FreesWholeChain(t *testing.T) {
	clusterSize := uint32(fat32test.BytesPerSector * fat32test.SectorsPerCluster)

	b := fat32test.NewBuilder(0)
	b.PutDirEntry(fat32test.RootCluster, 0, &fat32.DirEntry{
		Name: fat32test.ShortNameBytes("F.BIN"), Attr: fat32.AttrArchive,
		FirstClusterLo: 100, FileSize: 5 * clusterSize,
	})
	b.PutDirEntry(fat32test.RootCluster, 1, &fat32.DirEntry{Name: [11]byte{0x00}})
	b.SetFATEntry(100, 101)
	b.SetFATEntry(101, 102)
	b.SetFATEntry(102, 103)
	b.SetFATEntry(103, 104)
	b.SetFATEntry(104, fat32.Entry(0x0FFFFFF8))

	path, err := b.WriteTempFile("fat32test-truncate-*.img")
	require.NoError(t, err)
	f := openTestFile(t, path)

	fs, err := fat32.Open(path, fat32.OpenParams{})
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })

	obj, err := fs.GetObject("/f.bin")
	require.NoError(t, err)
	require.NoError(t, obj.Truncate(0))

	reloaded, err := fs.GetObject("/f.bin")
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	require.Equal(t, uint32(0), reloaded.Size())
	require.Equal(t, uint32(0), reloaded.FirstCluster())

	fat := fat32.NewFAT(f, fs.BPB())
	for _, c := range []uint32{100, 101, 102, 103, 104} {
		e, err := fat.GetEntry(c)
		require.NoError(t, err)
		require.Zero(t, uint32(e)&0x0FFFFFFF, "cluster %d still allocated", c)
	}
}

func TestObject_Truncate_RejectsGrowth(t *testing.T) {
	clusterSize := uint32(fat32test.BytesPerSector * fat32test.SectorsPerCluster)
	fs, _ := buildFileImage(t, clusterSize)

	obj, err := fs.GetObject("/f.bin")
	require.NoError(t, err)

	err = obj.Truncate(clusterSize * 2)
	require.Error(t, err)
	require.Equal(t, fat32.KindErrno, fat32.KindOf(err))
}

func TestObject_IsEmptyDirectory(t *testing.T) {
	b := fat32test.NewBuilder(0)
	fs := openTestFS(t, b)

	empty, err := fat32.Root(fs).IsEmptyDirectory()
	require.NoError(t, err)
	require.True(t, empty)
}

func TestObject_Delete_RejectsRoot(t *testing.T) {
	b := fat32test.NewBuilder(0)
	fs := openTestFS(t, b)

	err := fat32.Root(fs).Delete()
	require.Error(t, err)
	require.Equal(t, fat32.KindErrno, fat32.KindOf(err))
}
