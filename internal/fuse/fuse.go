//go:build linux
// +build linux

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

// Package fuse adapts internal/fat32's engine to bazil.org/fuse's node/
// handle interfaces: the kernel-callback shim spec.md §1 and §6 declare
// out of scope for the engine itself, but which this repository still
// needs in order to actually exercise the engine end to end. Grounded on
// the teacher's own internal/fuse/fuse.go (RecoverFS/Dir/File serving a
// flat synthetic file map), generalized here to the real FAT32 path
// resolution and directory iteration implemented in internal/fat32.
package fuse

import (
	"context"
	"os"
	"path"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/ostafen/digfat32/internal/fat32"
	"github.com/ostafen/digfat32/internal/logger"
)

// FS is the bazil.org/fuse root filesystem, wrapping one mounted
// *fat32.Filesystem.
type FS struct {
	fat *fat32.Filesystem
	log *logger.Logger
}

// NewFS constructs a fuse.FS serving fat. A nil log falls back to a
// stderr logger at ErrorLevel.
func NewFS(fat *fat32.Filesystem, log *logger.Logger) *FS {
	if log == nil {
		log = logger.New(os.Stderr, logger.ErrorLevel)
	}
	return &FS{fat: fat, log: log}
}

func (f *FS) Root() (fusefs.Node, error) {
	return &Dir{node{fs: f, obj: fat32.Root(f.fat), path: "/"}}, nil
}

// toErrno is the concrete realization of spec.md §7's callback-layer
// error-mapping table: every fat32.Error kind is translated to the POSIX
// errno bazil.org/fuse expects a Node/Handle method to return.
// FsInconsistent is logged at CRITICAL (Logger.Error) before mapping to
// EINVAL; FsPartiallyConsistent is reported to the kernel as success —
// the WARNING line for it is already logged at the point of detection in
// internal/fat32/object.go, closest to the information needed to explain
// it.
func (f *FS) toErrno(err error) error {
	if err == nil {
		return nil
	}

	switch fat32.KindOf(err) {
	case fat32.KindNone, fat32.KindFsPartiallyConsistent:
		return nil
	case fat32.KindFsInconsistent:
		f.log.Errorf("fs inconsistency, fsck required: %v", err)
		return fuse.Errno(syscall.EINVAL)
	case fat32.KindInvalidFS, fat32.KindInvalidDevice, fat32.KindInvalidCluster, fat32.KindClusterChainEnded:
		return fuse.Errno(syscall.EINVAL)
	case fat32.KindFsFull:
		return fuse.Errno(syscall.ENOSPC)
	case fat32.KindNonBlockDevice:
		return fuse.Errno(syscall.ENOTBLK)
	case fat32.KindErrno:
		if errno, ok := underlyingErrno(err); ok {
			return fuse.Errno(errno)
		}
		return fuse.Errno(syscall.EIO)
	default:
		return fuse.Errno(syscall.EIO)
	}
}

func underlyingErrno(err error) (syscall.Errno, bool) {
	for err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return errno, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
	}
	return 0, false
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return path.Join(parent, name)
}

// node is the state shared by Dir and File: the FSObject each wraps, and
// the path at which it was resolved — needed to re-resolve children and
// to key the Filesystem's open-file table.
type node struct {
	fs   *FS
	obj  *fat32.FSObject
	path string
}

func (n *node) attr(a *fuse.Attr) {
	if n.obj.IsDirectory() {
		a.Mode = os.ModeDir | 0555
		return
	}
	a.Mode = 0444
	a.Size = uint64(n.obj.Size())
}

// Dir implements fs.Node, fs.NodeStringLookuper, fs.HandleReadDirAller
// and fs.NodeRemover (unlink/rmdir). Create, Mkdir and Rename are wired
// explicitly to return EROFS: spec.md declares create/mkdir/write/rename
// non-goals, and leaving the interfaces unimplemented would instead
// surface as ENOSYS to the kernel, the wrong signal for a filesystem
// that is deliberately read-mostly rather than broken.
type Dir struct {
	node
}

func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	d.attr(a)
	return nil
}

func (d *Dir) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	childPath := joinPath(d.path, name)
	obj, err := d.fs.fat.GetObject(childPath)
	if err != nil {
		return nil, d.fs.toErrno(err)
	}
	if obj == nil {
		return nil, fuse.ENOENT
	}
	if obj.IsDirectory() {
		return &Dir{node{fs: d.fs, obj: obj, path: childPath}}, nil
	}
	return &File{node{fs: d.fs, obj: obj, path: childPath}}, nil
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	it := fat32.NewDirIter(d.fs.fat, d.obj, false)

	var entries []fuse.Dirent
	for {
		child, err := it.Next()
		if err != nil {
			return nil, d.fs.toErrno(err)
		}
		if child == nil {
			break
		}
		typ := fuse.DT_File
		if child.IsDirectory() {
			typ = fuse.DT_Dir
		}
		entries = append(entries, fuse.Dirent{Name: child.Name(), Type: typ})
	}
	return entries, nil
}

// Remove implements unlink (req.Dir == false) and rmdir (req.Dir ==
// true), driven by FSObject.Delete and FSObject.IsEmptyDirectory
// (spec.md §4.7).
func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	childPath := joinPath(d.path, req.Name)
	obj, err := d.fs.fat.GetObject(childPath)
	if err != nil {
		return d.fs.toErrno(err)
	}
	if obj == nil {
		return fuse.ENOENT
	}
	if req.Dir && !obj.IsDirectory() {
		return fuse.Errno(syscall.ENOTDIR)
	}
	if !req.Dir && obj.IsDirectory() {
		return fuse.Errno(syscall.EISDIR)
	}
	if obj.IsDirectory() {
		empty, err := obj.IsEmptyDirectory()
		if err != nil {
			return d.fs.toErrno(err)
		}
		if !empty {
			return fuse.Errno(syscall.ENOTEMPTY)
		}
	} else if d.fs.fat.IsPathOpen(childPath) {
		// This driver does not implement UNIX delete-while-open
		// semantics, matching original_source/src/operations.c's
		// fat32_unlink: a file with a live handle is reported busy
		// rather than unlinked out from under its reader.
		return fuse.Errno(syscall.EBUSY)
	}
	if err := obj.Delete(); err != nil {
		return d.fs.toErrno(err)
	}
	return nil
}

func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	return nil, nil, fuse.Errno(syscall.EROFS)
}

func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	return nil, fuse.Errno(syscall.EROFS)
}

func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fusefs.Node) error {
	return fuse.Errno(syscall.EROFS)
}

// File implements fs.Node, fs.NodeOpener and fs.NodeSetattrer (size
// changes only — a truncate).
type File struct {
	node
}

func (fl *File) Attr(ctx context.Context, a *fuse.Attr) error {
	fl.attr(a)
	return nil
}

func (fl *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	h, err := fl.fs.fat.AllocateHandle(fl.obj)
	if err != nil {
		return nil, fl.fs.toErrno(err)
	}
	fl.fs.fat.OpenPath(fl.path)
	resp.Flags |= fuse.OpenKeepCache
	return &FileHandle{fs: fl.fs, path: fl.path, fh: h}, nil
}

// Setattr only honours a size change (truncate). Any other requested
// field — mode, uid/gid, atime/mtime — is rejected with EROFS, since
// this driver never mutates anything about a file besides its length.
func (fl *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid&^fuse.SetattrSize != 0 {
		return fuse.Errno(syscall.EROFS)
	}
	if req.Valid.Size() {
		if err := fl.obj.Truncate(uint32(req.Size)); err != nil {
			return fl.fs.toErrno(err)
		}
	}
	fl.attr(&resp.Attr)
	return nil
}

// FileHandle is the open handle bazil.org/fuse hands back to the kernel
// on each read/release; it is keyed into the Filesystem's own handle
// table (spec.md §4.10) rather than caching its own copy of the FSObject,
// so the handle table stays the single authoritative lookup spec.md §3
// describes.
type FileHandle struct {
	fs   *FS
	path string
	fh   uint64
}

func (h *FileHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	obj, ok := h.fs.fat.LookupHandle(h.fh)
	if !ok {
		return fuse.Errno(syscall.EBADF)
	}
	buf := make([]byte, req.Size)
	n, err := h.fs.fat.ReadFile(obj, buf, req.Offset)
	if err != nil {
		return h.fs.toErrno(err)
	}
	resp.Data = buf[:n]
	return nil
}

func (h *FileHandle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	return fuse.Errno(syscall.EROFS)
}

func (h *FileHandle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	h.fs.fat.ReleaseHandle(h.fh)
	h.fs.fat.ClosePath(h.path)
	return nil
}
