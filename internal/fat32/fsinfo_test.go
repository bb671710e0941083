package fat32_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ostafen/digfat32/internal/fat32"
	"github.com/ostafen/digfat32/internal/fat32/fat32test"
)

func TestReadFSInfo_RoundTrip(t *testing.T) {
	b := fat32test.NewBuilder(0)
	bpb, err := fat32.ParseBPB(b.Bytes()[:fat32.BPBSize])
	require.NoError(t, err)

	path, err := b.WriteTempFile("fat32test-fsinfo-*.img")
	require.NoError(t, err)
	f := openTestFile(t, path)

	fsi, err := fat32.ReadFSInfo(f, bpb)
	require.NoError(t, err)
	require.Equal(t, uint32(fat32.FreeCountUnknown), fsi.FreeClusterCount)
	require.Equal(t, uint32(fat32.FreeCountUnknown), fsi.FreeClusterHint)

	raw, err := fsi.Bytes()
	require.NoError(t, err)

	reparsed, err := fat32.ReadFSInfo(&staticReaderAt{data: raw}, &fat32.BPB{})
	require.NoError(t, err)
	require.True(t, cmp.Equal(fsi, reparsed))
}

// staticReaderAt serves ReadAt requests directly from a fixed buffer
// starting at offset 0, for round-tripping an already-encoded region
// without needing a real file or a populated BPB sector-size field.
type staticReaderAt struct{ data []byte }

func (s *staticReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, errShortRead
	}
	return n, nil
}

var errShortRead = &shortReadErr{}

type shortReadErr struct{}

func (*shortReadErr) Error() string { return "short read" }
