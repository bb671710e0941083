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
	"errors"
	"io"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Device is the minimal positioned-I/O surface the engine needs from a
// backing block device or image file. *os.File satisfies it.
type Device interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Fd() uintptr
}

// readExact loops a positioned read at off until n bytes are consumed or a
// short read is detected. A short read (including io.EOF before n bytes)
// is reported as KindInvalidDevice: the device ended more abruptly than
// the on-disk metadata promised. Interrupted reads are retried
// transparently, matching the source driver's read_exact/EINTR discipline.
func readExact(dev io.ReaderAt, buf []byte, off int64) error {
	n := len(buf)
	read := 0
	for read < n {
		m, err := dev.ReadAt(buf[read:], off+int64(read))
		read += m
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			if errors.Is(err, io.EOF) {
				if read < n {
					return newErr(KindInvalidDevice, "short read")
				}
				break
			}
			return ErrnoErr(err)
		}
		if m == 0 {
			return newErr(KindInvalidDevice, "short read")
		}
	}
	return nil
}

// writeExact loops a positioned write at off until n bytes are written.
// Partial writes are retried, same discipline as readExact.
func writeExact(dev io.WriterAt, buf []byte, off int64) error {
	n := len(buf)
	written := 0
	for written < n {
		m, err := dev.WriteAt(buf[written:], off+int64(written))
		written += m
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return ErrnoErr(err)
		}
		if m == 0 {
			return newErr(KindInvalidDevice, "short write")
		}
	}
	return nil
}

// openRetry opens path for read-write access, retrying the open itself on
// EINTR, and confirms the result is a device node or a regular file (else
// KindNonBlockDevice).
// It mirrors internal/disk/stat.go's open-then-fstat discipline from the
// teacher, narrowed to the one mode this driver needs: a real block device
// or a regular file standing in for one in tests.
func openRetry(path string) (*os.File, error) {
	var f *os.File
	var err error
	for {
		f, err = os.OpenFile(path, os.O_RDWR, 0)
		if err == nil {
			break
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		return nil, ErrnoErr(err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ErrnoErr(err)
	}

	if fi.Mode()&os.ModeDevice == 0 && !fi.Mode().IsRegular() {
		f.Close()
		return nil, newErr(KindNonBlockDevice, "mount target is neither a block device nor a regular file")
	}

	return f, nil
}

// closeRetry closes f, retrying on EINTR.
func closeRetry(f io.Closer) error {
	for {
		err := f.Close()
		if err == nil {
			return nil
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		return ErrnoErr(err)
	}
}

// dupDevice returns a new *os.File backed by a duplicate of f's underlying
// descriptor, so the FAT can read entries through its own descriptor
// without contending on the main device descriptor's state (§9's
// "duplicate file descriptor" design note).
func dupDevice(f *os.File) (*os.File, error) {
	newFd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, ErrnoErr(err)
	}
	return os.NewFile(uintptr(newFd), f.Name()), nil
}

// blockDeviceSize returns the size in bytes of the backing device. For a
// genuine Linux block device it asks the kernel via the BLKGETSIZE64 ioctl,
// issued through golang.org/x/sys/unix's raw Syscall (the x/sys
// counterpart of the teacher's syscall.Syscall ioctl in
// internal/disk/stat.go); for a regular
// file (the common case in tests, and for disk images) it falls back to
// seeking to the end.
func blockDeviceSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, ErrnoErr(err)
	}

	if fi.Mode()&os.ModeDevice != 0 {
		var size uint64
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unixBLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
		if errno == 0 {
			return int64(size), nil
		}
		// Fall through to Seek if the ioctl isn't supported on this
		// platform/device; some loop/virtual devices don't implement it.
	}

	return f.Seek(0, io.SeekEnd)
}

// unixBLKGETSIZE64 is the Linux ioctl number for reading a block device's
// size in bytes. It is not exported by golang.org/x/sys/unix under a
// portable name, so it is named here the way the teacher's raw ioctl
// constant was in internal/disk/stat.go.
const unixBLKGETSIZE64 = 0x80081272