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

	"github.com/boljen/go-bitmap"
)

// Entry is a raw 32-bit FAT entry. Only the low 28 bits are meaningful;
// decode() extracts them.
type Entry uint32

const (
	entryMask = 0x0FFFFFFF
	entryBad  = 0x0FFFFFF7
	entryEOC  = 0x0FFFFFF8 // anything >= this is end-of-chain
)

func (e Entry) decode() uint32 { return uint32(e) & entryMask }

func (e Entry) isFree() bool { return e.decode() == 0 }
func (e Entry) isBad() bool  { return e.decode() == entryBad }
func (e Entry) isEnd() bool  { return e.decode() >= entryEOC }
func (e Entry) cluster() uint32 { return e.decode() }

const entrySize = 4 // bytes

// FAT owns the on-disk File Allocation Table: entry read/write, chain
// walking, free-cluster search, and chain truncation/freeing. It holds its
// own duplicate device descriptor so FAT reads never contend on the main
// device descriptor's implicit state, per §9's "duplicate file descriptor"
// design note and §5's "shared resources" model.
type FAT struct {
	dev Device
	bpb *BPB

	// freeHint is the free-cluster search hint. It starts at 2 (the
	// minimum valid cluster), never at the FSInfo-advertised hint, because
	// that hint may be stale (§4.4, §9 "Advisory FSInfo"). Mutated only
	// under the owning Filesystem's write lock.
	freeHint uint32
}

// NewFAT constructs a FAT bound to dev (the caller's own duplicate
// descriptor — Filesystem.Open is responsible for dup'ing) and bpb.
func NewFAT(dev Device, bpb *BPB) *FAT {
	return &FAT{
		dev:      dev,
		bpb:      bpb,
		freeHint: 2,
	}
}

func (f *FAT) entryOffset(cluster uint32) int64 {
	byteOffset := uint64(cluster) * entrySize
	sector := uint64(f.bpb.ReservedSectorCount) + byteOffset/uint64(f.bpb.BytesPerSector)
	sectorOffset := byteOffset % uint64(f.bpb.BytesPerSector)
	return f.bpb.SectorToOffset(uint32(sector)) + int64(sectorOffset)
}

// visitedSet is a per-walk scratch bitmap used to bound chain walks: the
// §9 Open Question's fix for an unbounded bad-cluster loop on a corrupted
// image. A fresh one is allocated for each bounded walk (GetNthEntry,
// FreeChain, the directory iterator's cluster stepping) rather than shared
// off the FAT, so concurrent read-only walks never race on shared scratch
// state — only the walk's own goroutine ever touches it.
type visitedSet struct {
	bits bitmap.Bitmap
}

func newVisitedSet(clusterCount uint32) *visitedSet {
	return &visitedSet{bits: bitmap.New(int(clusterCount) + 2)}
}

// newVisitedSet constructs a fresh scratch set sized for this FAT's volume,
// for callers outside this file (the directory iterator's bad-cluster
// skipping loop) that need the same bounded-walk cycle detection.
func (f *FAT) newVisitedSet() *visitedSet {
	return newVisitedSet(f.bpb.ClusterCount())
}

// mark records cluster as visited and reports whether it had already been
// seen in this walk (a cycle) or falls outside the addressable range
// (treated as already-seen so the caller reports InvalidFS rather than
// indexing out of bounds).
func (v *visitedSet) mark(cluster uint32) bool {
	idx := int(cluster)
	if idx < 0 || idx >= v.bits.Len() {
		return true
	}
	if v.bits.Get(idx) {
		return true
	}
	v.bits.Set(idx, true)
	return false
}

// GetEntry reads the raw FAT entry for cluster.
func (f *FAT) GetEntry(cluster uint32) (Entry, error) {
	var raw [entrySize]byte
	if err := readExact(f.dev, raw[:], f.entryOffset(cluster)); err != nil {
		return 0, err
	}
	return Entry(binary.LittleEndian.Uint32(raw[:])), nil
}

// SetEntry writes value as the raw FAT entry for cluster.
func (f *FAT) SetEntry(cluster uint32, value Entry) error {
	var raw [entrySize]byte
	binary.LittleEndian.PutUint32(raw[:], uint32(value))
	return writeExact(f.dev, raw[:], f.entryOffset(cluster))
}

// MarkClusterLast sets cluster's entry to an end-of-chain sentinel. A
// write failure here is reported as KindFsInconsistent: the caller (almost
// always Truncate) cannot tell from this alone whether the old chain
// beyond it is still considered live.
func (f *FAT) MarkClusterLast(cluster uint32) error {
	if err := f.SetEntry(cluster, Entry(entryEOC)); err != nil {
		return wrapErr(KindFsInconsistent, "marking cluster as chain end", err)
	}
	return nil
}

// GetNthEntry walks n links starting from cluster and returns the cluster
// number reached. Walking zero links returns cluster itself. The walk is
// bounded by ClusterCount (the §9 Open Question's fix): revisiting a
// cluster, or exceeding the bound, is reported as KindInvalidFS rather
// than looping forever on a corrupted chain.
func (f *FAT) GetNthEntry(cluster uint32, n uint32) (uint32, error) {
	seen := newVisitedSet(f.bpb.ClusterCount())
	seen.mark(cluster)

	cur := cluster
	for i := uint32(0); i < n; i++ {
		entry, err := f.GetEntry(cur)
		if err != nil {
			return 0, err
		}
		if entry.isEnd() {
			return 0, newErr(KindClusterChainEnded, "chain ended before reaching nth entry")
		}
		if entry.isBad() || entry.isFree() {
			return 0, newErr(KindInvalidFS, "bad or free cluster mid-chain")
		}
		next := entry.cluster()
		if seen.mark(next) {
			return 0, newErr(KindInvalidFS, "cluster chain cycle detected")
		}
		cur = next
	}
	return cur, nil
}

// FindFreeCluster scans from the current hint up to ClusterCount()+2,
// then wraps around to cluster 2 and continues up to the hint — the
// FSInfo hint (and this one) are only ever a starting point, so an
// exhaustive linear scan over every cluster is always attempted before
// giving up (§9 "Advisory FSInfo"). On success it advances the hint past
// the found cluster.
func (f *FAT) FindFreeCluster() (uint32, error) {
	last := f.bpb.ClusterCount() + 2
	start := f.freeHint
	if start < 2 || start >= last {
		start = 2
	}
	c := start
	for {
		entry, err := f.GetEntry(c)
		if err != nil {
			return 0, err
		}
		if entry.isFree() {
			f.freeHint = c + 1
			return c, nil
		}
		c++
		if c == last {
			c = 2
		}
		if c == start {
			break
		}
	}
	return 0, newErr(KindFsFull, "no free clusters remain")
}

// FreeChain walks the chain starting at cluster, setting every entry to
// zero (free). Encountering a bad or already-free cluster mid-chain is
// KindInvalidFS (the chain is corrupt); a write failure partway through is
// KindFsInconsistent (some entries cleared, some not — fsck required).
// The walk is bounded the same way GetNthEntry's is.
func (f *FAT) FreeChain(cluster uint32) error {
	seen := newVisitedSet(f.bpb.ClusterCount())

	cur := cluster
	for {
		if seen.mark(cur) {
			return newErr(KindInvalidFS, "cluster chain cycle detected")
		}

		entry, err := f.GetEntry(cur)
		if err != nil {
			return err
		}
		if entry.isBad() || entry.isFree() {
			return newErr(KindInvalidFS, "bad or free cluster mid-chain")
		}

		isEnd := entry.isEnd()
		next := entry.cluster()

		if err := f.SetEntry(cur, 0); err != nil {
			return wrapErr(KindFsInconsistent, "freeing cluster chain", err)
		}

		if isEnd {
			return nil
		}
		cur = next
	}
}