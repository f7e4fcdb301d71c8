package ishmem

import "github.com/ishmem-go/ishmem/internal/rma"

// Put performs a blocking contiguous put of nelems elements of T.
func Put[T rma.Number](inst *Instance, destPE int, dst, src uintptr, nelems uint64) error {
	return wrapErr("Put", rma.Put[T](inst.engine(), destPE, dst, src, nelems))
}

// Get performs a blocking contiguous get.
func Get[T rma.Number](inst *Instance, destPE int, dst, src uintptr, nelems uint64) error {
	return wrapErr("Get", rma.Get[T](inst.engine(), destPE, dst, src, nelems))
}

// Handle identifies an outstanding nonblocking RMA request.
type Handle = rma.Handle

// PutNbi is Put's nonblocking form; call Quiet or Handle.Wait to
// establish completion. Every nbi post counts against Config.NBICount,
// forcing an automatic Quiet once that many are outstanding.
func PutNbi[T rma.Number](inst *Instance, destPE int, dst, src uintptr, nelems uint64) Handle {
	h := rma.PutNbi[T](inst.Ring(), destPE, dst, src, nelems)
	inst.noteNbi()
	return h
}

func GetNbi[T rma.Number](inst *Instance, destPE int, dst, src uintptr, nelems uint64) Handle {
	h := rma.GetNbi[T](inst.Ring(), destPE, dst, src, nelems)
	inst.noteNbi()
	return h
}

// IPut performs a blocking strided put.
func IPut[T rma.Number](inst *Instance, destPE int, dst, src uintptr, dstride, sstride int64, nelems uint64) error {
	return wrapErr("IPut", rma.IPut[T](inst.engine(), destPE, dst, src, dstride, sstride, nelems))
}

func IGet[T rma.Number](inst *Instance, destPE int, dst, src uintptr, dstride, sstride int64, nelems uint64) error {
	return wrapErr("IGet", rma.IGet[T](inst.engine(), destPE, dst, src, dstride, sstride, nelems))
}

// IBPut and IBGet are the bulk-strided nonblocking forms: nblocks
// strides, each copying a contiguous block of bsize elements.
func IBPut[T rma.Number](inst *Instance, destPE int, dst, src uintptr, dstride, sstride int64, bsize, nblocks uint64) Handle {
	h := rma.IBPut[T](inst.Ring(), destPE, dst, src, dstride, sstride, bsize, nblocks)
	inst.noteNbi()
	return h
}

func IBGet[T rma.Number](inst *Instance, destPE int, dst, src uintptr, dstride, sstride int64, bsize, nblocks uint64) Handle {
	h := rma.IBGet[T](inst.Ring(), destPE, dst, src, dstride, sstride, bsize, nblocks)
	inst.noteNbi()
	return h
}

// P writes a single scalar value to destPE.
func P[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) error {
	return wrapErr("P", rma.P[T](inst.engine(), destPE, dst, value))
}

// G reads a single scalar value from destPE.
func G[T rma.Number](inst *Instance, destPE int, src uintptr) (T, error) {
	v, err := rma.G[T](inst.engine(), destPE, src)
	if err != nil {
		return v, WrapError("G", err)
	}
	return v, nil
}
