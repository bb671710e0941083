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

	"github.com/go-restruct/restruct"
	"golang.org/x/text/encoding/charmap"
)

// DirEntrySize is the fixed size in bytes of an on-disk directory entry.
const DirEntrySize = 32

// Attribute bits, per spec.md §3.
const (
	AttrReadOnly = 0x01
	AttrHidden   = 0x02
	AttrSystem   = 0x04
	AttrVolumeID = 0x08
	AttrDir      = 0x10
	AttrArchive  = 0x20

	// attrLongName is the combination marking a long-filename (VFAT)
	// fragment, which this driver skips entirely (LFN decoding is a
	// declared non-goal).
	attrLongName = 0x0F
)

const (
	// nameFreeAll marks this slot, and all following slots in the
	// directory, as free — the FAT32 stream terminator.
	nameFreeAll = 0x00
	// nameFreeOne marks this slot free, but later slots may still be live.
	nameFreeOne = 0xE5
)

// DirEntry is a decoded 32-byte on-disk directory entry.
type DirEntry struct {
	Name             [11]byte
	Attr             uint8
	_                uint8 // NT reserved
	CreateTimeTenths uint8
	CreateTime       uint16
	CreateDate       uint16
	AccessDate       uint16
	FirstClusterHi   uint16
	WriteTime        uint16
	WriteDate        uint16
	FirstClusterLo   uint16
	FileSize         uint32
}

// DecodeDirEntry unpacks a DirEntrySize-byte directory entry record.
func DecodeDirEntry(raw []byte) (*DirEntry, error) {
	if len(raw) != DirEntrySize {
		return nil, newErr(KindInvalidFS, "directory entry has wrong size")
	}
	var e DirEntry
	if err := restruct.Unpack(raw, binary.LittleEndian, &e); err != nil {
		return nil, wrapErr(KindInvalidFS, "decoding directory entry", err)
	}
	return &e, nil
}

// Bytes re-encodes the directory entry to its 32-byte wire form.
func (e *DirEntry) Bytes() ([]byte, error) {
	raw, err := restruct.Pack(binary.LittleEndian, e)
	if err != nil {
		return nil, wrapErr(KindInvalidFS, "encoding directory entry", err)
	}
	return raw, nil
}

func (e *DirEntry) IsFile() bool      { return e.Attr&AttrDir == 0 }
func (e *DirEntry) IsDirectory() bool { return e.Attr&AttrDir != 0 }

// IsLongNameFragment reports whether this entry is a VFAT long-filename
// fragment, which the directory iterator filters out entirely.
func (e *DirEntry) IsLongNameFragment() bool {
	return e.Attr&attrLongName == attrLongName
}

// IsFree reports whether this slot is free: either this one slot (0xE5) or
// this one and everything after it (0x00).
func (e *DirEntry) IsFree() bool {
	return e.Name[0] == nameFreeOne || e.Name[0] == nameFreeAll
}

// IsLast reports whether this slot is the stream terminator: this one and
// every following slot in the directory are free.
func (e *DirEntry) IsLast() bool {
	return e.Name[0] == nameFreeAll
}

// IsDot reports whether the decoded short name begins with '.', i.e. this
// is a "." or ".." entry.
func (e *DirEntry) IsDot() bool {
	return e.Name[0] == '.'
}

// FirstCluster reassembles the first cluster number from its split
// high/low 16-bit halves.
func (e *DirEntry) FirstCluster() uint32 {
	return uint32(e.FirstClusterHi)<<16 | uint32(e.FirstClusterLo)
}

// cp437Decoder decodes the OEM-codepage bytes legacy DOS short names use
// above 0x7F. Grounded on golang.org/x/text, pulled in from the
// soypat/fat example for exactly this kind of codepage handling (see
// SPEC_FULL.md §3).
var cp437Decoder = charmap.CodePage437.NewDecoder()

// ShortName decodes the 11-byte name field into its UTF-8 "BASE.EXT" (or
// bare "BASE") form: trim trailing spaces from the 8-byte base and the
// 3-byte extension separately, then join with '.' only if the extension is
// non-empty. Bytes above 0x7F are decoded through CP437 first. Dot
// handling is byte-level, not semantic: a name of "...        " decodes to
// "..." exactly as spec.md §8 requires.
func ShortName(e *DirEntry) string {
	base := trimTrailingSpaces(e.Name[0:8])
	ext := trimTrailingSpaces(e.Name[8:11])

	base = decodeCP437(base)
	ext = decodeCP437(ext)

	if ext == "" {
		return base
	}
	return base + "." + ext
}

func trimTrailingSpaces(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == ' ' {
		i--
	}
	return b[:i]
}

func decodeCP437(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out, err := cp437Decoder.Bytes(b)
	if err != nil {
		// Undecodable byte sequences fall back to the raw bytes, unchanged,
		// rather than failing the whole lookup over one odd byte.
		return string(b)
	}
	return string(out)
}

// MarkFree writes the 0xE5 "free slot" sentinel to byte 0 of the name
// field at the entry's on-disk offset, leaving everything else in the
// directory's surrounding bytes untouched.
func MarkFree(dev Device, offset int64) error {
	return writeExact(dev, []byte{nameFreeOne}, offset)
}