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

// DirIter lazily walks the cluster chain of a directory, yielding each
// live entry in turn. It filters out free slots (except the terminator,
// which ends iteration permanently), long-filename fragments, and
// optionally "." / "..".
type DirIter struct {
	fs *Filesystem

	// cluster is the cluster currently being walked; 0 means exhausted.
	cluster uint32
	// offset is the byte offset within cluster of the next entry to
	// examine.
	offset uint32
	// listDots controls whether "." and ".." entries are yielded.
	listDots bool
}

// NewDirIter constructs an iterator over dir's directory stream.
func NewDirIter(fs *Filesystem, dir *FSObject, listDots bool) *DirIter {
	return &DirIter{
		fs:       fs,
		cluster:  dir.FirstCluster(),
		offset:   0,
		listDots: listDots,
	}
}

// Next returns the next live FSObject in the directory, or nil if the
// stream is exhausted. Once any terminator slot (byte[0] == 0x00) has been
// seen, every subsequent call returns nil — the FAT32 convention that a
// terminator means every following slot is free too, so no further
// positioned reads are issued past it.
func (it *DirIter) Next() (*FSObject, error) {
	clusterSize := it.fs.clusterSize

	for {
		if it.cluster == 0 {
			return nil, nil
		}

		if it.offset == clusterSize {
			next, err := it.stepCluster()
			if err != nil {
				return nil, err
			}
			if !next {
				return nil, nil
			}
			continue
		}

		offset := it.fs.bpb.ClusterToOffset(it.cluster) + int64(it.offset)

		raw := make([]byte, DirEntrySize)
		if err := readExact(it.fs.dev, raw, offset); err != nil {
			return nil, err
		}
		it.offset += DirEntrySize

		entry, err := DecodeDirEntry(raw)
		if err != nil {
			return nil, err
		}

		if entry.IsLast() {
			it.cluster = 0
			return nil, nil
		}

		if it.skip(entry) {
			continue
		}

		name := ShortName(entry)
		return FromDirEntry(it.fs, entry, name, offset), nil
	}
}

// skip reports whether entry should be filtered out of the stream: a free
// (but not terminating) slot, a long-filename fragment, or — when
// listDots is false — a "." / ".." entry.
func (it *DirIter) skip(entry *DirEntry) bool {
	if entry.IsFree() {
		return true
	}
	if entry.IsLongNameFragment() {
		return true
	}
	if !it.listDots && entry.IsDot() {
		return true
	}
	return false
}

// stepCluster advances to the next cluster in the chain, skipping bad
// clusters, and reports false if the chain has ended.
func (it *DirIter) stepCluster() (bool, error) {
	// A fresh scratch set per call: the skip loop below is entirely
	// self-contained (it either finds a good cluster or detects a cycle
	// before returning), so there is no need to carry state across calls —
	// and not doing so means concurrent iterators never race on shared
	// scratch state (the §9 Open Question's bound, applied the same way
	// FAT's own chain walks are bounded).
	var seen *visitedSet

	for {
		entry, err := it.fs.fat.GetEntry(it.cluster)
		if err != nil {
			return false, err
		}
		if entry.isEnd() {
			it.cluster = 0
			return false, nil
		}
		if entry.isBad() {
			if seen == nil {
				seen = it.fs.fat.newVisitedSet()
				seen.mark(it.cluster)
			}
			if seen.mark(entry.cluster()) {
				return false, newErr(KindInvalidFS, "cluster chain cycle detected while skipping bad clusters")
			}
			it.cluster = entry.cluster()
			continue
		}
		it.cluster = entry.cluster()
		it.offset = 0
		return true, nil
	}
}