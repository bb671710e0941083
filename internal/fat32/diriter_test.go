package fat32_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ostafen/digfat32/internal/fat32"
	"github.com/ostafen/digfat32/internal/fat32/fat32test"
)

func openTestFS(t *testing.T, b *fat32test.Builder) *fat32.Filesystem {
	t.Helper()
	path, err := b.WriteTempFile("fat32test-fs-*.img")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })

	fs, err := fat32.Open(path, fat32.OpenParams{})
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	return fs
}

func TestDirIter_FiltersAndTerminates(t *testing.T) {
	b := fat32test.NewBuilder(0)

	fooName := fat32test.ShortNameBytes("FOO.TXT")
	b.PutDirEntry(fat32test.RootCluster, 0, &fat32.DirEntry{
		Name: fooName, Attr: fat32.AttrArchive, FirstClusterHi: 0, FirstClusterLo: 10, FileSize: 42,
	})

	lfnName := [11]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	b.PutDirEntry(fat32test.RootCluster, 1, &fat32.DirEntry{
		Name: lfnName, Attr: fat32.AttrReadOnly | fat32.AttrHidden | fat32.AttrSystem | fat32.AttrVolumeID,
	})

	b.PutDirEntry(fat32test.RootCluster, 2, &fat32.DirEntry{Name: [11]byte{0xE5}})

	barName := fat32test.ShortNameBytes("BAR")
	b.PutDirEntry(fat32test.RootCluster, 3, &fat32.DirEntry{
		Name: barName, Attr: fat32.AttrDir, FirstClusterHi: 0, FirstClusterLo: 11,
	})

	b.PutDirEntry(fat32test.RootCluster, 4, &fat32.DirEntry{Name: [11]byte{0x00}})

	fs := openTestFS(t, b)

	it := fat32.NewDirIter(fs, fat32.Root(fs), false)

	first, err := it.Next()
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, "FOO.TXT", first.Name())
	require.True(t, first.IsFile())

	second, err := it.Next()
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, "BAR", second.Name())
	require.True(t, second.IsDirectory())

	third, err := it.Next()
	require.NoError(t, err)
	require.Nil(t, third)
}

func TestDirIter_DotFiltering(t *testing.T) {
	b := fat32test.NewBuilder(0)

	dot := [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	dotdot := [11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	b.PutDirEntry(fat32test.RootCluster, 0, &fat32.DirEntry{Name: dot, Attr: fat32.AttrDir, FirstClusterLo: 2})
	b.PutDirEntry(fat32test.RootCluster, 1, &fat32.DirEntry{Name: dotdot, Attr: fat32.AttrDir, FirstClusterLo: 2})
	b.PutDirEntry(fat32test.RootCluster, 2, &fat32.DirEntry{Name: [11]byte{0x00}})

	fs := openTestFS(t, b)

	it := fat32.NewDirIter(fs, fat32.Root(fs), false)
	next, err := it.Next()
	require.NoError(t, err)
	require.Nil(t, next)

	it = fat32.NewDirIter(fs, fat32.Root(fs), true)
	first, err := it.Next()
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, ".", first.Name())
}
