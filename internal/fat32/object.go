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

// ObjectKind tags what an FSObject represents.
type ObjectKind int

const (
	KindFile ObjectKind = iota
	KindDirectory
	KindRootDirectory
)

// emptyFileCluster is the sentinel first-cluster value for a file that
// owns no clusters at all (a freshly truncated-to-zero file).
const emptyFileCluster = 0

// FSObject is the unified in-memory view of a file, a subdirectory, or the
// root directory. Non-root variants carry an owned copy of their 32-byte
// directory entry, its decoded short name, and the absolute byte offset on
// the device where that entry lives (needed to mark it free). Root
// carries only a borrowed reference to its owning Filesystem, per §3/§9's
// ownership model.
type FSObject struct {
	fs *Filesystem

	kind   ObjectKind
	entry  *DirEntry
	name   string
	offset int64
}

// Root constructs the FSObject for the volume's root directory.
func Root(fs *Filesystem) *FSObject {
	return &FSObject{fs: fs, kind: KindRootDirectory}
}

// FromDirEntry constructs an FSObject from a decoded directory entry found
// at offset, classifying it as a file unless the DIRECTORY attribute bit
// is set.
func FromDirEntry(fs *Filesystem, entry *DirEntry, name string, offset int64) *FSObject {
	kind := KindFile
	if entry.IsDirectory() {
		kind = KindDirectory
	}
	return &FSObject{fs: fs, kind: kind, entry: entry, name: name, offset: offset}
}

func (o *FSObject) Name() string { return o.name }

func (o *FSObject) IsFile() bool            { return o.kind == KindFile }
func (o *FSObject) IsDirectory() bool       { return o.kind == KindDirectory || o.kind == KindRootDirectory }
func (o *FSObject) IsRootDirectory() bool   { return o.kind == KindRootDirectory }

// FirstCluster returns the first cluster of this object's data: the BPB's
// root cluster for the root directory, or the entry's reassembled
// first-cluster field otherwise.
func (o *FSObject) FirstCluster() uint32 {
	if o.kind == KindRootDirectory {
		return o.fs.bpb.RootCluster
	}
	return o.entry.FirstCluster()
}

// Size returns the file size in bytes. Only defined for files.
func (o *FSObject) Size() uint32 {
	if o.kind != KindFile {
		return 0
	}
	return o.entry.FileSize
}

// Offset returns the on-disk byte offset of this object's directory entry.
// Not meaningful for the root directory.
func (o *FSObject) Offset() int64 { return o.offset }

// MarkFree writes the 0xE5 sentinel to this object's directory entry,
// marking the slot free. Not permitted on the root directory.
func (o *FSObject) MarkFree() error {
	if o.kind == KindRootDirectory {
		return newErr(KindErrno, "cannot mark the root directory free")
	}
	if err := MarkFree(o.fs.dev, o.offset); err != nil {
		return err
	}
	o.entry.Name[0] = nameFreeOne
	return nil
}

// IsEmptyDirectory reports whether this directory (root or subdirectory)
// contains no live entries besides "." and "..". It constructs an
// iterator with listDots=false and checks whether the first Next() yields
// nothing.
func (o *FSObject) IsEmptyDirectory() (bool, error) {
	it := NewDirIter(o.fs, o, false)
	next, err := it.Next()
	if err != nil {
		return false, err
	}
	return next == nil, nil
}

// Delete removes this object from its directory: it marks the directory
// entry free, then frees its cluster chain (unless it owned none). If
// marking the entry free succeeds but freeing the chain fails, the result
// is KindFsPartiallyConsistent: the file is gone from every listing, but
// some clusters may still be marked used on disk — fsck-recoverable, not
// fsck-required. Not permitted on the root directory.
func (o *FSObject) Delete() error {
	if o.kind == KindRootDirectory {
		return newErr(KindErrno, "cannot delete the root directory")
	}

	o.fs.writeLock.Lock()
	defer o.fs.writeLock.Unlock()

	first := o.FirstCluster()

	if err := o.MarkFree(); err != nil {
		return err
	}

	if first == emptyFileCluster {
		return nil
	}

	if err := o.fs.fat.FreeChain(first); err != nil {
		o.fs.log.Warnf("delete %q: directory entry freed but chain free failed: %v", o.name, err)
		return wrapErr(KindFsPartiallyConsistent, "directory entry freed, cluster chain still allocated", err)
	}
	return nil
}

// Truncate changes a file's size. Growing a file (newLength > current) is
// out of scope per spec.md §4.7 and is rejected. Shrinking frees every
// cluster beyond the last one the new length still needs; shrinking to
// zero clears the entry's first-cluster field entirely and frees the
// whole chain.
func (o *FSObject) Truncate(newLength uint32) error {
	if o.kind != KindFile {
		return newErr(KindErrno, "truncate is only defined on files")
	}

	current := o.entry.FileSize
	if newLength == current {
		return nil
	}
	if newLength > current {
		return newErr(KindErrno, "growing a file is out of scope")
	}

	o.fs.writeLock.Lock()
	defer o.fs.writeLock.Unlock()

	clusterSize := o.fs.clusterSize
	needed := (newLength + clusterSize - 1) / clusterSize

	if needed == 0 {
		first := o.FirstCluster()
		if err := o.clearToEmpty(); err != nil {
			return err
		}
		if first == emptyFileCluster {
			return nil
		}
		if err := o.fs.fat.FreeChain(first); err != nil {
			o.fs.log.Warnf("truncate %q to 0: entry updated but chain free failed: %v", o.name, err)
			return wrapErr(KindFsPartiallyConsistent, "entry updated, cluster chain still allocated", err)
		}
		return nil
	}

	lastKept, err := o.fs.fat.GetNthEntry(o.FirstCluster(), needed-1)
	if err != nil {
		return err
	}

	successorEntry, err := o.fs.fat.GetEntry(lastKept)
	if err != nil {
		return err
	}

	if err := o.setSize(newLength); err != nil {
		return err
	}

	if err := o.fs.fat.MarkClusterLast(lastKept); err != nil {
		return err
	}

	if !successorEntry.isEnd() {
		if err := o.fs.fat.FreeChain(successorEntry.cluster()); err != nil {
			o.fs.log.Warnf("truncate %q: entry updated but tail chain free failed: %v", o.name, err)
			return wrapErr(KindFsPartiallyConsistent, "entry updated, tail cluster chain still allocated", err)
		}
	}
	return nil
}

// setSize rewrites only the file-size field of the on-disk directory
// entry, leaving first-cluster untouched.
func (o *FSObject) setSize(size uint32) error {
	o.entry.FileSize = size
	return o.rewriteEntry()
}

// clearToEmpty rewrites the entry as an empty file: zero size, zero
// first-cluster.
func (o *FSObject) clearToEmpty() error {
	o.entry.FileSize = 0
	o.entry.FirstClusterHi = 0
	o.entry.FirstClusterLo = 0
	return o.rewriteEntry()
}

func (o *FSObject) rewriteEntry() error {
	raw, err := o.entry.Bytes()
	if err != nil {
		return wrapErr(KindFsInconsistent, "re-encoding directory entry", err)
	}
	if err := writeExact(o.fs.dev, raw, o.offset); err != nil {
		return wrapErr(KindFsInconsistent, "writing directory entry", err)
	}
	return nil
}