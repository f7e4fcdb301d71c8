//go:build !(linux && cgo && amd64)

package ring

import "sync/atomic"

// Sfence is a portable fallback when the cgo asm fence isn't available:
// Go's sync/atomic operations already carry sequential-consistency
// semantics across goroutines, so a dummy acquire/release pair suffices
// for the loopback (single-process) runtime plugin.
func Sfence() {
	var x int32
	atomic.StoreInt32(&x, 0)
}

// Mfence is the portable fallback for Mfence; see Sfence.
func Mfence() {
	var x int32
	atomic.AddInt32(&x, 0)
}
