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

import "strings"

// resolvePath splits path into its non-empty, slash-delimited components
// and descends from the root directory one component at a time, per
// spec.md §4.8. Empty components (consecutive slashes, a trailing slash)
// are skipped; name comparison is byte-equal on the decoded short-name
// string — no case folding, since the on-disk name is already uppercased
// per spec.md §3.
//
// A component that can't be found in its parent is "not found": this
// returns (nil, nil, nil), never an error, matching the resolver's
// contract that it never invents errors of its own. Any other failure
// (a corrupt directory stream, a device I/O error) propagates unchanged
// from the directory iterator.
func resolvePath(fs *Filesystem, path string) (obj *FSObject, parent *FSObject, err error) {
	cur := Root(fs)
	var prev *FSObject

	for _, comp := range strings.Split(path, "/") {
		if comp == "" {
			continue
		}
		if !cur.IsDirectory() {
			return nil, nil, nil
		}

		child, cerr := findChild(fs, cur, comp)
		if cerr != nil {
			return nil, nil, cerr
		}
		if child == nil {
			return nil, nil, nil
		}

		prev = cur
		cur = child
	}

	return cur, prev, nil
}

// findChild walks a dot-filtering iterator over dir looking for an entry
// whose decoded short name matches name exactly.
func findChild(fs *Filesystem, dir *FSObject, name string) (*FSObject, error) {
	it := NewDirIter(fs, dir, false)
	for {
		next, err := it.Next()
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		if next.Name() == name {
			return next, nil
		}
	}
}