package queue

import (
	"sync"
	"unsafe"
)

// BufferPool hands out sector-aligned byte slices for direct I/O so probe
// and host code can avoid per-request allocations. Buckets are powers of two
// from 4KB to 1MB; larger requests are allocated directly and never pooled.
//
// Uses *[]byte pattern to avoid sync.Pool interface allocation overhead.

// Alignment is the memory alignment of every pooled buffer. 4KB satisfies
// O_DIRECT on both 512e and 4Kn devices.
const Alignment = 4096

const (
	size4k   = 4 * 1024
	size8k   = 8 * 1024
	size64k  = 64 * 1024
	size256k = 256 * 1024
	size1m   = 1024 * 1024
)

var bucketSizes = [...]int{size4k, size8k, size64k, size256k, size1m}

var globalPool [len(bucketSizes)]sync.Pool

func init() {
	for i, size := range bucketSizes {
		size := size
		globalPool[i].New = func() any {
			b := alignedSlice(size)
			return &b
		}
	}
}

// alignedSlice allocates size bytes starting on an Alignment boundary.
// The returned slice has len == cap == size.
func alignedSlice(size int) []byte {
	raw := make([]byte, size+Alignment)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) & (Alignment - 1)); rem != 0 {
		off = Alignment - rem
	}
	return raw[off : off+size : off+size]
}

func bucketFor(size int) int {
	for i, s := range bucketSizes {
		if size <= s {
			return i
		}
	}
	return -1
}

// GetBuffer returns an aligned buffer of exactly size bytes.
// Caller must call PutBuffer when done.
func GetBuffer(size int) []byte {
	i := bucketFor(size)
	if i < 0 {
		return alignedSlice(size)
	}
	return (*globalPool[i].Get().(*[]byte))[:size]
}

// PutBuffer returns a buffer to the pool.
// The buffer's capacity determines which pool it goes to.
func PutBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	for i, s := range bucketSizes {
		if c == s {
			globalPool[i].Put(&buf)
			return
		}
	}
	// Buffers with non-standard capacity are not returned to pool
}

// IsAligned reports whether buf starts on an Alignment boundary.
func IsAligned(buf []byte) bool {
	if len(buf) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&buf[0]))&(Alignment-1) == 0
}
