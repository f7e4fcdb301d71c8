package ring

import "runtime"

// spinWait yields the OS thread instead of busy-looping a full CPU spin.
// The real library's CPU monitor/wait hint (ISHMEM_MWAIT_BURST) saves
// power by parking on a cache-line write; Go has no portable
// monitor/mwait intrinsic, so proxy.Proxy implements a configurable
// burst-then-sleep policy instead, and this lower-level spin (used by
// producer-side Reserve/Wait, which cannot see that policy) just
// cooperatively yields.
func spinWait() {
	runtime.Gosched()
}
