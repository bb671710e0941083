package fat32_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ostafen/digfat32/internal/fat32"
	"github.com/ostafen/digfat32/internal/fat32/fat32test"
)

func TestParseBPB_RoundTrip(t *testing.T) {
	b := fat32test.NewBuilder(0)
	raw := b.Bytes()[:fat32.BPBSize]

	bpb, err := fat32.ParseBPB(raw)
	require.NoError(t, err)

	reencoded, err := bpb.Bytes()
	require.NoError(t, err)
	require.True(t, cmp.Equal(raw, reencoded))

	reparsed, err := fat32.ParseBPB(reencoded)
	require.NoError(t, err)
	require.True(t, cmp.Equal(bpb, reparsed, cmp.AllowUnexported(fat32.BPB{})))
}

func TestParseBPB_WrongSize(t *testing.T) {
	_, err := fat32.ParseBPB(make([]byte, fat32.BPBSize-1))
	require.Error(t, err)
	require.Equal(t, fat32.KindInvalidFS, fat32.KindOf(err))
}

func TestParseBPB_RejectsBadSectorSize(t *testing.T) {
	b := fat32test.NewBuilder(0)
	raw := append([]byte(nil), b.Bytes()[:fat32.BPBSize]...)
	raw[11] = 0x00
	raw[12] = 0x03 // bytes_per_sector = 0x0300, not in the valid set

	_, err := fat32.ParseBPB(raw)
	require.Error(t, err)
	require.Equal(t, fat32.KindInvalidFS, fat32.KindOf(err))
}

func TestBPB_ClusterMath(t *testing.T) {
	b := fat32test.NewBuilder(fat32test.MinClusterCount)
	bpb, err := fat32.ParseBPB(b.Bytes()[:fat32.BPBSize])
	require.NoError(t, err)

	require.Equal(t, uint32(fat32test.BytesPerSector*fat32test.SectorsPerCluster), bpb.ClusterSize())
	require.True(t, bpb.IsValidCluster(2))
	require.True(t, bpb.IsValidCluster(bpb.ClusterCount()+1))
	require.False(t, bpb.IsValidCluster(bpb.ClusterCount()+2))
	require.False(t, bpb.IsValidCluster(1))
	require.False(t, bpb.IsValidCluster(0))
}
