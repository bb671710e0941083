// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package fat32

import (
	"encoding/binary"
	"math/bits"

	"github.com/go-restruct/restruct"
)

// BPBSize is the size in bytes of the BPB region this driver decodes,
// starting at sector 0. It deliberately stops short of the boot-signature
// and padding bytes the source's fat32_bpb_t also reserves: this driver
// has no use for them, and decoding them field-by-field would only add
// surface area restruct has to agree on.
const BPBSize = 90

// validSectorSizes enumerates the only bytes-per-sector values FAT32
// recognises.
var validSectorSizes = map[uint16]bool{512: true, 1024: true, 2048: true, 4096: true}

// maxClusterSize is the largest permitted cluster size in bytes (32 KiB).
const maxClusterSize = 32 * 1024

// minFAT32ClusterCount is the smallest cluster count that makes a volume
// FAT32 rather than FAT12/FAT16.
const minFAT32ClusterCount = 65525

// BPB is the decoded Boot Parameter Block: FAT32 geometry plus the derived
// fields the rest of the engine needs on every lookup (cluster size,
// first data sector). Grounded on the teacher's internal/disk/fat.go
// (whole-disk, FAT12/16/32-generic FatBootSector) and
// original_source/include/fat32/bpb.h for the FAT32-only field list this
// driver actually needs.
type BPB struct {
	JmpBoot             [3]byte
	OEMName             [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   uint8
	ReservedSectorCount uint16
	FATCount            uint8
	RootEntriesCount    uint16
	TotalSectorsCount16 uint16
	MediaType           uint8
	FATSize16           uint16
	SectorsPerTrack     uint16
	HeadsNumber         uint16
	HiddenSectorsCount  uint32
	TotalSectorsCount   uint32
	FATSize             uint32
	ExtendedFlags       uint16
	FSVersion           uint16
	RootCluster         uint32
	FSInfoSector        uint16
	BackupBootSector    uint16
	Reserved            [12]byte
	DriveNumber         uint8
	NTReserved          uint8
	BootSignature       uint8
	VolumeID            uint32
	VolumeLabel         [11]byte
	FSType              [8]byte

	// Derived fields, cached once at parse time rather than recomputed on
	// every call — the same values are consulted on every cluster lookup.
	clusterSize     uint32
	firstDataSector uint32
	clusterCount    uint32
}

// ParseBPB decodes a BPBSize-byte region read from sector 0 and validates
// it. It never reinterprets raw bytes as a Go struct; decoding goes through
// go-restruct's explicit field-by-field unpacking, driven by the fields'
// declared types and order, instead (see
// SPEC_FULL.md §3), which keeps endianness and layout under this driver's
// control regardless of host architecture.
func ParseBPB(raw []byte) (*BPB, error) {
	if len(raw) != BPBSize {
		return nil, newErr(KindInvalidFS, "bpb region has wrong size")
	}

	var bpb BPB
	if err := restruct.Unpack(raw, binary.LittleEndian, &bpb); err != nil {
		return nil, wrapErr(KindInvalidFS, "decoding bpb", err)
	}

	bpb.clusterSize = uint32(bpb.BytesPerSector) * uint32(bpb.SectorsPerCluster)
	bpb.firstDataSector = uint32(bpb.ReservedSectorCount) + uint32(bpb.FATCount)*bpb.FATSize
	if bpb.TotalSectorsCount > bpb.firstDataSector {
		bpb.clusterCount = (bpb.TotalSectorsCount - bpb.firstDataSector) / uint32(bpb.SectorsPerCluster)
	}

	if !bpb.Validate() {
		return nil, newErr(KindInvalidFS, "bpb failed validation")
	}
	return &bpb, nil
}

// Bytes re-encodes the BPB to its BPBSize-byte wire form. Used for the
// round-trip invariant ParseBPB(Bytes()) == original.
func (b *BPB) Bytes() ([]byte, error) {
	raw, err := restruct.Pack(binary.LittleEndian, b)
	if err != nil {
		return nil, wrapErr(KindInvalidFS, "encoding bpb", err)
	}
	return raw, nil
}

// Validate applies every structural rule from spec.md §3: sector size
// enumeration, power-of-two cluster sizing under the 32 KiB cap, the
// FAT32-only zero fields, jmp_boot shape, cluster-count floor, and
// in-range root cluster/FSInfo sector.
func (b *BPB) Validate() bool {
	if !validSectorSizes[b.BytesPerSector] {
		return false
	}
	if b.SectorsPerCluster == 0 || bits.OnesCount8(b.SectorsPerCluster) != 1 {
		return false
	}
	if uint32(b.BytesPerSector)*uint32(b.SectorsPerCluster) > maxClusterSize {
		return false
	}
	if b.ReservedSectorCount < 1 {
		return false
	}
	if b.FATCount == 0 {
		return false
	}
	if b.TotalSectorsCount == 0 {
		return false
	}
	if b.FATSize == 0 {
		return false
	}
	if b.RootEntriesCount != 0 || b.TotalSectorsCount16 != 0 || b.FATSize16 != 0 || b.FSVersion != 0 {
		return false
	}
	if b.JmpBoot[0] != 0xEB && b.JmpBoot[0] != 0xE9 {
		return false
	}
	if b.JmpBoot[0] == 0xEB && b.JmpBoot[2] != 0x90 {
		return false
	}
	if b.clusterCount < minFAT32ClusterCount {
		return false
	}
	if !b.isValidClusterNumber(b.RootCluster) {
		return false
	}
	if b.FSInfoSector < 1 || uint32(b.FSInfoSector) >= uint32(b.ReservedSectorCount) {
		return false
	}
	return true
}

// ClusterCount returns the number of data clusters on the volume.
func (b *BPB) ClusterCount() uint32 { return b.clusterCount }

// ClusterSize returns the cluster size in bytes.
func (b *BPB) ClusterSize() uint32 { return b.clusterSize }

// FirstDataSector returns the sector index where cluster 2 begins.
func (b *BPB) FirstDataSector() uint32 { return b.firstDataSector }

// IsValidCluster reports whether n is in the addressable range
// [2, ClusterCount()+1] for this volume.
func (b *BPB) IsValidCluster(n uint32) bool {
	return b.isValidClusterNumber(n)
}

func (b *BPB) isValidClusterNumber(n uint32) bool {
	return n >= 2 && n <= b.clusterCount+1
}

// SectorToOffset converts a sector index to an absolute byte offset.
func (b *BPB) SectorToOffset(sector uint32) int64 {
	return int64(sector) * int64(b.BytesPerSector)
}

// ClusterFirstSector returns the sector index at which cluster n's data
// begins.
func (b *BPB) ClusterFirstSector(n uint32) uint32 {
	return b.firstDataSector + (n-2)*uint32(b.SectorsPerCluster)
}

// ClusterToOffset converts a cluster number to an absolute byte offset of
// its first byte.
func (b *BPB) ClusterToOffset(n uint32) int64 {
	return b.SectorToOffset(b.ClusterFirstSector(n))
}