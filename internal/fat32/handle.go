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

import "sync"

// HandleAllocator monotonically issues opaque 64-bit handles, starting at
// 1 (0 is reserved/invalid). It has no notion of closed handles — handles
// are never reused, so exhaustion in practice never occurs, per §4.10.
type HandleAllocator struct {
	mu      sync.Mutex
	counter uint64
}

// Next returns the next handle, or reports exhaustion if incrementing
// would wrap past the 64-bit maximum.
func (h *HandleAllocator) Next() (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.counter == ^uint64(0) {
		return 0, newErr(KindErrno, "handle space exhausted")
	}
	h.counter++
	return h.counter, nil
}