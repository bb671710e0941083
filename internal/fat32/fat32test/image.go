// Package fat32test builds synthetic in-memory FAT32 volumes for the
// fat32 package's tests. It wraps a pre-sized byte slice in a
// bytewriter.Writer and issues ordinary io.Writer writes at sequential
// offsets, the same way dargueta-disko's unixv1 formatter (and its
// compression tests) build output buffers — grounded on that repo's use
// of github.com/noxer/bytewriter for exactly this kind of "build a disk
// image in memory, then hand it to code that expects a WriterAt" task.
package fat32test

import (
	"encoding/binary"
	"os"

	"github.com/noxer/bytewriter"

	"github.com/ostafen/digfat32/internal/fat32"
)

// Defaults chosen to keep test images small: one sector per cluster, the
// minimum FAT32-legal cluster count, two FATs.
const (
	BytesPerSector    = 512
	SectorsPerCluster = 1
	ReservedSectors   = 32
	FATCount          = 2
	RootCluster       = 2

	// MinClusterCount is spec.md §3's FAT32 floor; Builder defaults to
	// exactly this so a minimal image is still a valid one.
	MinClusterCount = 65525
)

// Builder assembles a complete FAT32 volume image byte-by-byte: BPB,
// FSInfo, room for both FAT copies (only the first is ever filled in; see
// SetFATEntry), and a data region addressed by cluster number.
// Entries are written directly through the fat32 package's own wire
// types (BPB, FSInfo, DirEntry) so a built image exercises the identical
// encode path the driver uses to decode it.
type Builder struct {
	clusterCount uint32
	clusterSize  uint32
	fatSectors   uint32
	dataOffset   int64
	buf          []byte
}

// NewBuilder allocates a clusterCount-cluster image (defaulting to
// MinClusterCount when clusterCount is 0) and writes a valid BPB and
// FSInfo sector into it.
func NewBuilder(clusterCount uint32) *Builder {
	if clusterCount == 0 {
		clusterCount = MinClusterCount
	}

	clusterSize := uint32(BytesPerSector) * SectorsPerCluster
	dataSectors := clusterCount * SectorsPerCluster
	fatEntries := clusterCount + 2
	fatBytes := fatEntries * 4
	fatSectors := (fatBytes + BytesPerSector - 1) / BytesPerSector

	firstDataSector := uint32(ReservedSectors) + FATCount*fatSectors
	totalSectors := firstDataSector + dataSectors

	b := &Builder{
		clusterCount: clusterCount,
		clusterSize:  clusterSize,
		fatSectors:   fatSectors,
		dataOffset:   int64(firstDataSector) * int64(BytesPerSector),
		buf:          make([]byte, int64(totalSectors)*int64(BytesPerSector)),
	}

	b.writeBPB(totalSectors, fatSectors)
	b.writeFSInfo()
	// Root directory's own single cluster starts zeroed, which is already
	// a valid empty directory stream (byte[0] of slot 0 is 0x00).
	b.SetFATEntry(RootCluster, fat32.Entry(0x0FFFFFF8))
	return b
}

func (b *Builder) writeBPB(totalSectors, fatSectors uint32) {
	bpb := &fat32.BPB{
		JmpBoot:             [3]byte{0xEB, 0x58, 0x90},
		OEMName:             [8]byte{'M', 'S', 'W', 'I', 'N', '4', '.', '1'},
		BytesPerSector:      BytesPerSector,
		SectorsPerCluster:   SectorsPerCluster,
		ReservedSectorCount: ReservedSectors,
		FATCount:            FATCount,
		RootEntriesCount:    0,
		TotalSectorsCount16: 0,
		MediaType:           0xF8,
		FATSize16:           0,
		SectorsPerTrack:     32,
		HeadsNumber:         64,
		HiddenSectorsCount:  0,
		TotalSectorsCount:   totalSectors,
		FATSize:             fatSectors,
		ExtendedFlags:       0,
		FSVersion:           0,
		RootCluster:         RootCluster,
		FSInfoSector:        1,
		BackupBootSector:    6,
		DriveNumber:         0x80,
		BootSignature:       0x29,
		VolumeID:            0x12345678,
		VolumeLabel:         [11]byte{'N', 'O', ' ', 'N', 'A', 'M', 'E', ' ', ' ', ' ', ' '},
		FSType:              [8]byte{'F', 'A', 'T', '3', '2', ' ', ' ', ' '},
	}
	raw, err := bpb.Bytes()
	if err != nil {
		panic(err)
	}
	copy(b.buf[0:], raw)
}

func (b *Builder) writeFSInfo() {
	fsi := &fat32.FSInfo{
		LeadSignature:    0x41615252,
		StructSignature:  0x61417272,
		FreeClusterCount: fat32.FreeCountUnknown,
		FreeClusterHint:  fat32.FreeCountUnknown,
		TrailSignature:   0xAA550000,
	}
	raw, err := fsi.Bytes()
	if err != nil {
		panic(err)
	}
	off := int64(1) * BytesPerSector // FSInfoSector == 1
	copy(b.buf[off:], raw)
}

// fatEntryOffset mirrors fat.go's own entryOffset math, since this
// builder has to address the same FAT region the driver reads.
func (b *Builder) fatEntryOffset(cluster uint32) int64 {
	byteOffset := int64(cluster) * 4
	return int64(ReservedSectors)*BytesPerSector + byteOffset
}

// SetFATEntry writes value into the first FAT copy's entry for cluster.
// Real volumes keep every FAT copy in sync; this builder only maintains
// the first, which is all the driver ever reads.
func (b *Builder) SetFATEntry(cluster uint32, value fat32.Entry) {
	w := bytewriter.New(b.buf[b.fatEntryOffset(cluster):])
	binary.Write(w, binary.LittleEndian, uint32(value))
}

// ClusterOffset returns the byte offset of cluster n within the image.
func (b *Builder) ClusterOffset(n uint32) int64 {
	return b.dataOffset + int64(n-2)*int64(b.clusterSize)
}

// WriteCluster copies data (truncated or zero-padded to ClusterSize) into
// cluster n's region.
func (b *Builder) WriteCluster(n uint32, data []byte) {
	w := bytewriter.New(b.buf[b.ClusterOffset(n):])
	buf := make([]byte, b.clusterSize)
	copy(buf, data)
	w.Write(buf)
}

// PutDirEntry encodes entry and writes it at the given slot index within
// directory cluster dirCluster (slot*32 bytes into the cluster).
func (b *Builder) PutDirEntry(dirCluster uint32, slot int, entry *fat32.DirEntry) {
	raw, err := entry.Bytes()
	if err != nil {
		panic(err)
	}
	off := b.ClusterOffset(dirCluster) + int64(slot)*fat32.DirEntrySize
	w := bytewriter.New(b.buf[off:])
	w.Write(raw)
}

// ShortNameBytes packs a "BASE" or "BASE.EXT" string into an 11-byte,
// space-padded, uppercased short-name field. It does no charset handling
// beyond ASCII — sufficient for the fixture names tests need.
func ShortNameBytes(name string) [11]byte {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	base, ext := name, ""
	for i, c := range name {
		if c == '.' {
			base, ext = name[:i], name[i+1:]
			break
		}
	}
	for i := 0; i < len(base) && i < 8; i++ {
		out[i] = upper(base[i])
	}
	for i := 0; i < len(ext) && i < 3; i++ {
		out[8+i] = upper(ext[i])
	}
	return out
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// ClusterCount returns the volume's addressable cluster count.
func (b *Builder) ClusterCount() uint32 { return b.clusterCount }

// ClusterSize returns the volume's cluster size in bytes.
func (b *Builder) ClusterSize() uint32 { return b.clusterSize }

// Bytes returns the complete raw image.
func (b *Builder) Bytes() []byte { return b.buf }

// WriteTempFile writes the built image to a new temp file and returns its
// path; the caller is responsible for removing it.
func (b *Builder) WriteTempFile(pattern string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(b.buf); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
