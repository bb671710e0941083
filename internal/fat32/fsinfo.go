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
	"io"

	"github.com/go-restruct/restruct"
)

// FSInfoSize is the on-disk size of the FSInfo sector this driver decodes:
// 512 bytes regardless of the volume's actual sector size, per the
// spec — the lead/struct/trail signatures and the two advisory counters
// occupy a fixed 512-byte layout inside whatever sector FSInfoSector names.
const FSInfoSize = 512

const (
	fsInfoLeadSignature   = 0x41615252
	fsInfoStructSignature = 0x61417272
	fsInfoTrailSignature  = 0xAA550000
	// FreeCountUnknown is the "unknown" sentinel for FSInfo.FreeClusterCount
	// and FSInfo.FreeClusterHint.
	FreeCountUnknown = 0xFFFFFFFF
)

// FSInfo is the decoded FSInfo sector. Its counters are advisory only —
// the engine never trusts them as authoritative (see FAT.FindFreeCluster).
type FSInfo struct {
	LeadSignature   uint32
	_               [480]byte
	StructSignature uint32
	FreeClusterCount uint32
	FreeClusterHint  uint32
	_                [12]byte
	TrailSignature   uint32
}

// ReadFSInfo positions at the byte offset of bpb.FSInfoSector, reads
// FSInfoSize bytes, and validates the lead, struct and trail signatures.
// The device's existing
// file offset, if any, is left untouched — all I/O here is positioned via
// ReadAt, never a Seek+Read pair, matching §4.3's "no implicit seek state
// assumed across operations".
func ReadFSInfo(dev io.ReaderAt, bpb *BPB) (*FSInfo, error) {
	off := bpb.SectorToOffset(uint32(bpb.FSInfoSector))

	raw := make([]byte, FSInfoSize)
	if err := readExact(dev, raw, off); err != nil {
		return nil, err
	}

	var fi FSInfo
	if err := restruct.Unpack(raw, binary.LittleEndian, &fi); err != nil {
		return nil, wrapErr(KindInvalidFS, "decoding fsinfo", err)
	}

	if fi.LeadSignature != fsInfoLeadSignature || fi.StructSignature != fsInfoStructSignature || fi.TrailSignature != fsInfoTrailSignature {
		return nil, newErr(KindInvalidFS, "fsinfo signature mismatch")
	}

	return &fi, nil
}

// Bytes re-encodes the FSInfo sector, for the round-trip invariant and for
// tests building synthetic images.
func (fi *FSInfo) Bytes() ([]byte, error) {
	raw, err := restruct.Pack(binary.LittleEndian, fi)
	if err != nil {
		return nil, wrapErr(KindInvalidFS, "encoding fsinfo", err)
	}
	return raw, nil
}