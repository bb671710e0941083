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

// Package fat32 implements a read-mostly FAT32 on-disk engine: BPB/FSInfo
// parsing, FAT cluster-chain traversal, directory-entry decoding, and
// pathname resolution over a backing block device.
package fat32

import "fmt"

// ErrorKind classifies the failure taxonomy the engine propagates upward so
// a callback layer can map it to the right POSIX errno.
type ErrorKind int

const (
	// KindNone indicates success. Functions return a nil *Error, not an
	// *Error with this kind; it exists so the zero value is meaningful.
	KindNone ErrorKind = iota

	// KindErrno wraps a failure from a lower-level OS primitive; Err holds
	// the original error (commonly a *os.PathError or syscall.Errno).
	KindErrno

	// KindNonBlockDevice means the mount target is not a block device.
	KindNonBlockDevice

	// KindInvalidDevice means I/O succeeded but returned fewer bytes than
	// required, indicating truncation or corruption of the backing device.
	KindInvalidDevice

	// KindInvalidFS means on-disk data failed structural validation (BPB,
	// FSInfo, a FAT chain).
	KindInvalidFS

	// KindInvalidCluster means a cluster number is out of range for this
	// volume.
	KindInvalidCluster

	// KindClusterChainEnded means a walk for n links reached end-of-chain
	// prematurely.
	KindClusterChainEnded

	// KindFsFull means no free clusters remain.
	KindFsFull

	// KindFsInconsistent means a write failed mid-operation in a way that
	// leaves on-disk state neither fully old nor fully new; fsck required.
	KindFsInconsistent

	// KindFsPartiallyConsistent means the user-visible view is correct
	// (e.g. a file appears deleted) but some orphan clusters remain
	// allocated; fsck recommended, not required for continued use.
	KindFsPartiallyConsistent
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindErrno:
		return "errno"
	case KindNonBlockDevice:
		return "non-block-device"
	case KindInvalidDevice:
		return "invalid-device"
	case KindInvalidFS:
		return "invalid-fs"
	case KindInvalidCluster:
		return "invalid-cluster"
	case KindClusterChainEnded:
		return "cluster-chain-ended"
	case KindFsFull:
		return "fs-full"
	case KindFsInconsistent:
		return "fs-inconsistent"
	case KindFsPartiallyConsistent:
		return "fs-partially-consistent"
	default:
		return "unknown"
	}
}

// Error is the engine's concrete error type. It is deliberately a struct
// implementing the error interface, not an exhaustive enum switch, so
// callers can use errors.As/errors.Is against the wrapped cause the way
// the rest of the Go ecosystem does.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("fat32: %s: %s: %v", e.Kind, e.Msg, e.Err)
		}
		return fmt.Sprintf("fat32: %s: %v", e.Kind, e.Err)
	}
	if e.Msg != "" {
		return fmt.Sprintf("fat32: %s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("fat32: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, &fat32.Error{Kind: fat32.KindFsFull}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func wrapErr(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// ErrnoErr wraps a lower-level OS primitive failure.
func ErrnoErr(err error) *Error {
	return &Error{Kind: KindErrno, Err: err}
}

// KindOf extracts the ErrorKind carried by err, if any, walking the Unwrap
// chain. It returns KindNone for a nil error and KindErrno for any other
// non-fat32 error, mirroring the "unrecognised OS-level failure" case.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var fe *Error
	if as(err, &fe) {
		return fe.Kind
	}
	return KindErrno
}

// as is a small hand-written stand-in for errors.As: it follows the
// single-error Unwrap chain and stops at the first *Error it finds.
func as(err error, target **Error) bool {
	for err != nil {
		if fe, ok := err.(*Error); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
