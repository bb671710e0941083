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
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"

	"github.com/ostafen/digfat32/internal/logger"
)

// OpenParams are the mount-time parameters spec.md §6 calls out as
// belonging to this layer (as opposed to the excluded shim's verbose/
// log-path/foreground flags): the sizing hints for the two open-file
// tables.
type OpenParams struct {
	// OpenFileTableSize and HandleTableSize are capacity hints passed to
	// make(map[...], hint) for the two tables below. Go's builtin map
	// satisfies §4.7/§9's "specified by contract, not reimplemented"
	// associative-container requirement — there is no bespoke hash table
	// to build here.
	OpenFileTableSize int
	HandleTableSize   int

	// Logger receives structured diagnostics (CRITICAL/WARNING-equivalent
	// lines the callback layer's error mapping in spec.md §7 calls for).
	// Passed explicitly, never a package global, per §9's "Global state"
	// note. A nil Logger discards everything.
	Logger *logger.Logger
}

// openFileRecord tracks how many live handles reference a given path.
// The engine does not implement UNIX delete-while-open semantics (per
// original_source/src/operations.c's fat32_unlink: "for now we don't
// implement UNIX semantic of deletion") — a path with a live record is
// simply reported busy to the caller instead, so this table only ever
// needs a reference count.
type openFileRecord struct {
	refCount int
}

// Filesystem owns everything acquired at mount time: the BPB/FSInfo
// (immutable reference data), the FAT, the write lock serializing every
// on-disk mutation, and the two open-file tables. FSObject and the
// directory iterator borrow a Filesystem rather than owning one, per §9's
// "cyclic references" note.
type Filesystem struct {
	dev *os.File
	bpb *BPB
	fsi *FSInfo
	fat *FAT

	clusterSize uint32

	// writeLock serializes FAT mutations, directory-entry mutations, and
	// the free-cluster hint, per §5/§9. ReadCluster, ReadFile, GetObject and
	// GetObjectWithParent take the read side and may run concurrently with
	// each other; they never observe a half-mutated on-disk state because
	// every mutation holds the write side for its entire duration. A DirIter
	// used directly (readdir, IsEmptyDirectory) takes no lock of its own.
	writeLock sync.RWMutex

	handlesMu sync.Mutex
	handles   map[uint64]*FSObject

	openFilesMu sync.Mutex
	openFiles   map[string]*openFileRecord

	handleAlloc HandleAllocator

	log *logger.Logger
}

// Open mounts path: opens it read-write (retrying on EINTR), confirms it's
// a block device or regular file, reads and validates the BPB then the
// FSInfo sector, constructs the FAT (which dups the descriptor), and
// allocates the open-file tables sized by params. Any failure after a
// prior acquisition unwinds everything already acquired, in reverse order;
// errors from the unwind steps are collected with go-multierror (grounded
// on the dargueta/disko example's use of the same library for multi-step
// teardown, SPEC_FULL.md §4.9) but are not returned: the caller receives
// only the failure that stopped the open.
func Open(path string, params OpenParams) (fs *Filesystem, err error) {
	f, err := openRetry(path)
	if err != nil {
		return nil, err
	}
	acquired := []func() error{func() error { return closeRetry(f) }}
	defer func() {
		if err != nil {
			unwind(acquired)
		}
	}()

	size, err := blockDeviceSize(f)
	if err != nil {
		return nil, err
	}

	bpbRaw := make([]byte, BPBSize)
	if rerr := readExact(f, bpbRaw, 0); rerr != nil {
		return nil, rerr
	}
	bpb, err := ParseBPB(bpbRaw)
	if err != nil {
		return nil, err
	}

	minSize := int64(bpb.TotalSectorsCount) * int64(bpb.BytesPerSector)
	if size < minSize {
		return nil, newErr(KindInvalidDevice, "device shorter than bpb total_sectors implies")
	}

	fsi, err := ReadFSInfo(f, bpb)
	if err != nil {
		return nil, err
	}

	fatDup, err := dupDevice(f)
	if err != nil {
		return nil, err
	}
	acquired = append(acquired, func() error { return closeRetry(fatDup) })

	fat := NewFAT(fatDup, bpb)

	if params.OpenFileTableSize <= 0 {
		params.OpenFileTableSize = 64
	}
	if params.HandleTableSize <= 0 {
		params.HandleTableSize = 64
	}

	log := params.Logger
	if log == nil {
		log = logger.New(io.Discard, logger.ErrorLevel)
	}

	log.Infof("mounted %s: %s total, %s clusters of %s each",
		path,
		humanize.IBytes(uint64(size)),
		humanize.Comma(int64(bpb.ClusterCount())),
		humanize.IBytes(uint64(bpb.ClusterSize())),
	)

	return &Filesystem{
		dev:         f,
		bpb:         bpb,
		fsi:         fsi,
		fat:         fat,
		clusterSize: bpb.ClusterSize(),
		handles:     make(map[uint64]*FSObject, params.HandleTableSize),
		openFiles:   make(map[string]*openFileRecord, params.OpenFileTableSize),
		log:         log,
	}, nil
}

// Close finalizes the FAT (closing its duplicate descriptor) and closes
// the main device descriptor, aggregating any errors from either step.
func (fs *Filesystem) Close() error {
	var merr *multierror.Error
	if err := closeRetry(fs.fat.dev); err != nil {
		merr = multierror.Append(merr, err)
	}
	if err := closeRetry(fs.dev); err != nil {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}

func unwind(fns []func() error) {
	var merr *multierror.Error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	_ = merr // unwind errors on the failure path are diagnostic only
}

// BPB exposes the mounted volume's boot parameter block.
func (fs *Filesystem) BPB() *BPB { return fs.bpb }

// ClusterSize returns the cluster size in bytes.
func (fs *Filesystem) ClusterSize() uint32 { return fs.clusterSize }

// ReadCluster validates cluster and positioned-reads ClusterSize() bytes
// into buf, which must be at least that large.
func (fs *Filesystem) ReadCluster(cluster uint32, buf []byte) error {
	fs.writeLock.RLock()
	defer fs.writeLock.RUnlock()
	return fs.readClusterLocked(cluster, buf)
}

func (fs *Filesystem) readClusterLocked(cluster uint32, buf []byte) error {
	if !fs.bpb.IsValidCluster(cluster) {
		return newErr(KindInvalidCluster, "cluster out of range")
	}
	return readExact(fs.dev, buf[:fs.clusterSize], fs.bpb.ClusterToOffset(cluster))
}

// ReadFile reads len(buf) bytes of obj's content starting at byte offset
// off, clamped to the file's size, walking obj's cluster chain and
// composing reads across cluster boundaries (spec.md §8 scenario 3: a
// read spanning a cluster boundary must return the tail of one cluster
// and the head of the next as a single contiguous slice). It returns the
// number of bytes actually copied into buf.
func (fs *Filesystem) ReadFile(obj *FSObject, buf []byte, off int64) (int, error) {
	if !obj.IsFile() {
		return 0, newErr(KindErrno, "read is only defined on files")
	}
	if off < 0 {
		return 0, newErr(KindErrno, "negative read offset")
	}

	fs.writeLock.RLock()
	defer fs.writeLock.RUnlock()

	size := int64(obj.Size())
	if off >= size {
		return 0, nil
	}
	if off+int64(len(buf)) > size {
		buf = buf[:size-off]
	}
	if len(buf) == 0 {
		return 0, nil
	}

	clusterSize := int64(fs.clusterSize)
	startSkip := uint32(off / clusterSize)
	clusterOff := off % clusterSize

	cluster, err := fs.fat.GetNthEntry(obj.FirstCluster(), startSkip)
	if err != nil {
		return 0, err
	}

	clusterBuf := make([]byte, fs.clusterSize)
	read := 0
	for read < len(buf) {
		if err := fs.readClusterLocked(cluster, clusterBuf); err != nil {
			return read, err
		}

		n := copy(buf[read:], clusterBuf[clusterOff:])
		read += n
		clusterOff = 0
		if read >= len(buf) {
			break
		}

		entry, err := fs.fat.GetEntry(cluster)
		if err != nil {
			return read, err
		}
		if entry.isEnd() || entry.isBad() || entry.isFree() {
			return read, newErr(KindInvalidFS, "cluster chain ended before file size was satisfied")
		}
		cluster = entry.cluster()
	}
	return read, nil
}

// GetObject resolves path to an FSObject, delegating to the path resolver.
// A nil object with a nil error means "not found".
func (fs *Filesystem) GetObject(path string) (*FSObject, error) {
	fs.writeLock.RLock()
	defer fs.writeLock.RUnlock()
	obj, _, err := resolvePath(fs, path)
	return obj, err
}

// GetObjectWithParent is GetObject plus the resolved object's parent
// directory, for callers (unlink, rmdir) that need to re-scan the parent.
func (fs *Filesystem) GetObjectWithParent(path string) (obj *FSObject, parent *FSObject, err error) {
	fs.writeLock.RLock()
	defer fs.writeLock.RUnlock()
	return resolvePath(fs, path)
}

// AllocateHandle issues a new handle and remembers obj as what it refers
// to. Safe for concurrent callers.
func (fs *Filesystem) AllocateHandle(obj *FSObject) (uint64, error) {
	h, err := fs.handleAlloc.Next()
	if err != nil {
		return 0, err
	}
	fs.handlesMu.Lock()
	fs.handles[h] = obj
	fs.handlesMu.Unlock()
	return h, nil
}

// LookupHandle returns the object a previously allocated handle refers to.
func (fs *Filesystem) LookupHandle(h uint64) (*FSObject, bool) {
	fs.handlesMu.Lock()
	defer fs.handlesMu.Unlock()
	obj, ok := fs.handles[h]
	return obj, ok
}

// ReleaseHandle forgets a previously allocated handle.
func (fs *Filesystem) ReleaseHandle(h uint64) {
	fs.handlesMu.Lock()
	delete(fs.handles, h)
	fs.handlesMu.Unlock()
}

// OpenPath records that path has one more live reference, so a later
// unlink attempt on the same path can be reported busy instead of
// deleting a file out from under an open reader.
func (fs *Filesystem) OpenPath(path string) {
	fs.openFilesMu.Lock()
	defer fs.openFilesMu.Unlock()
	rec, ok := fs.openFiles[path]
	if !ok {
		rec = &openFileRecord{}
		fs.openFiles[path] = rec
	}
	rec.refCount++
}

// ClosePath records that path has one fewer live reference, dropping the
// record entirely once the count reaches zero.
func (fs *Filesystem) ClosePath(path string) {
	fs.openFilesMu.Lock()
	defer fs.openFilesMu.Unlock()
	rec, ok := fs.openFiles[path]
	if !ok {
		return
	}
	rec.refCount--
	if rec.refCount <= 0 {
		delete(fs.openFiles, path)
	}
}

// IsPathOpen reports whether path currently has any live handle
// referencing it, per the open-file table. The callback layer consults
// this before unlinking a file: this driver does not implement UNIX
// delete-while-open semantics (see openFileRecord), so a path with a live
// handle is reported busy instead of deleted out from under its reader.
func (fs *Filesystem) IsPathOpen(path string) bool {
	fs.openFilesMu.Lock()
	defer fs.openFilesMu.Unlock()
	rec, ok := fs.openFiles[path]
	return ok && rec.refCount > 0
}