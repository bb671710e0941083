package fat32_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ostafen/digfat32/internal/fat32"
	"github.com/ostafen/digfat32/internal/fat32/fat32test"
)

func TestFilesystem_ReadCluster(t *testing.T) {
	b := fat32test.NewBuilder(0)
	want := bytes.Repeat([]byte{0xAB}, int(fat32test.BytesPerSector*fat32test.SectorsPerCluster))
	b.WriteCluster(100, want)

	fs := openTestFS(t, b)

	got := make([]byte, fs.ClusterSize())
	require.NoError(t, fs.ReadCluster(100, got))
	require.Equal(t, want, got)
}

func TestFilesystem_ReadCluster_InvalidCluster(t *testing.T) {
	b := fat32test.NewBuilder(0)
	fs := openTestFS(t, b)

	buf := make([]byte, fs.ClusterSize())
	err := fs.ReadCluster(1, buf)
	require.Error(t, err)
	require.Equal(t, fat32.KindInvalidCluster, fat32.KindOf(err))

	err = fs.ReadCluster(fs.BPB().ClusterCount()+2, buf)
	require.Error(t, err)
	require.Equal(t, fat32.KindInvalidCluster, fat32.KindOf(err))
}

// TestFilesystem_ReadFile_CrossesClusterBoundary is spec.md §8 scenario 3:
// a read spanning a cluster boundary must return the tail of one cluster
// and the head of the next as a single contiguous slice.
func TestFilesystem_ReadFile_CrossesClusterBoundary(t *testing.T) {
	clusterSize := int(fat32test.BytesPerSector * fat32test.SectorsPerCluster)

	b := fat32test.NewBuilder(0)

	first := bytes.Repeat([]byte{0x11}, clusterSize)
	second := bytes.Repeat([]byte{0x22}, clusterSize)
	b.WriteCluster(100, first)
	b.WriteCluster(101, second)
	b.SetFATEntry(100, 101)
	b.SetFATEntry(101, fat32.Entry(0x0FFFFFF8))

	b.PutDirEntry(fat32test.RootCluster, 0, &fat32.DirEntry{
		Name: fat32test.ShortNameBytes("F.BIN"), Attr: fat32.AttrArchive,
		FirstClusterLo: 100, FileSize: uint32(clusterSize * 2),
	})

	fs := openTestFS(t, b)

	obj, err := fs.GetObject("/f.bin")
	require.NoError(t, err)
	require.NotNil(t, obj)

	off := int64(clusterSize) - 2
	buf := make([]byte, 4)
	n, err := fs.ReadFile(obj, buf, off)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	want := []byte{0x11, 0x11, 0x22, 0x22}
	require.Equal(t, want, buf)
}

func TestFilesystem_ReadFile_ClampedAtEOF(t *testing.T) {
	clusterSize := int(fat32test.BytesPerSector * fat32test.SectorsPerCluster)

	b := fat32test.NewBuilder(0)
	b.WriteCluster(100, bytes.Repeat([]byte{0x33}, clusterSize))
	b.SetFATEntry(100, fat32.Entry(0x0FFFFFF8))
	b.PutDirEntry(fat32test.RootCluster, 0, &fat32.DirEntry{
		Name: fat32test.ShortNameBytes("F.BIN"), Attr: fat32.AttrArchive,
		FirstClusterLo: 100, FileSize: 10,
	})

	fs := openTestFS(t, b)
	obj, err := fs.GetObject("/f.bin")
	require.NoError(t, err)

	buf := make([]byte, 100)
	n, err := fs.ReadFile(obj, buf, 5)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, bytes.Repeat([]byte{0x33}, 5), buf[:n])
}

func TestFilesystem_ReadFile_OffsetPastEOF(t *testing.T) {
	b := fat32test.NewBuilder(0)
	b.SetFATEntry(100, fat32.Entry(0x0FFFFFF8))
	b.PutDirEntry(fat32test.RootCluster, 0, &fat32.DirEntry{
		Name: fat32test.ShortNameBytes("F.BIN"), Attr: fat32.AttrArchive,
		FirstClusterLo: 100, FileSize: 4,
	})

	fs := openTestFS(t, b)
	obj, err := fs.GetObject("/f.bin")
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := fs.ReadFile(obj, buf, 100)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

// TestOpen_RejectsUndersizedDevice is spec.md §8 scenario 1: mounting a
// device shorter than the BPB's own TotalSectorsCount implies must be
// rejected rather than silently truncating reads later.
func TestOpen_RejectsUndersizedDevice(t *testing.T) {
	b := fat32test.NewBuilder(0)
	full := b.Bytes()

	f, err := os.CreateTemp("", "fat32test-undersized-*.img")
	require.NoError(t, err)
	defer os.Remove(f.Name())

	_, err = f.Write(full[:len(full)-int(fat32test.BytesPerSector)])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = fat32.Open(f.Name(), fat32.OpenParams{})
	require.Error(t, err)
	require.Equal(t, fat32.KindInvalidDevice, fat32.KindOf(err))
}
