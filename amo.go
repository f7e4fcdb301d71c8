package ishmem

import (
	"github.com/ishmem-go/ishmem/internal/amo"
	"github.com/ishmem-go/ishmem/internal/rma"
)

// AmoFetch atomically reads dst on destPE.
func AmoFetch[T rma.Number](inst *Instance, destPE int, dst uintptr) (T, error) {
	v, err := amo.Fetch[T](inst.engine(), destPE, dst)
	return v, wrapErr("AmoFetch", err)
}

// AmoSet atomically writes value to dst on destPE.
func AmoSet[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) error {
	return wrapErr("AmoSet", amo.Set[T](inst.engine(), destPE, dst, value))
}

// AmoInc atomically increments dst on destPE.
func AmoInc[T rma.Number](inst *Instance, destPE int, dst uintptr) error {
	return wrapErr("AmoInc", amo.Inc[T](inst.engine(), destPE, dst))
}

// AmoFetchInc atomically increments dst, returning its prior value.
func AmoFetchInc[T rma.Number](inst *Instance, destPE int, dst uintptr) (T, error) {
	v, err := amo.FetchInc[T](inst.engine(), destPE, dst)
	return v, wrapErr("AmoFetchInc", err)
}

// AmoAdd atomically adds value to dst on destPE.
func AmoAdd[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) error {
	return wrapErr("AmoAdd", amo.Add[T](inst.engine(), destPE, dst, value))
}

// AmoFetchAdd atomically adds value to dst, returning its prior value.
func AmoFetchAdd[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) (T, error) {
	v, err := amo.FetchAdd[T](inst.engine(), destPE, dst, value)
	return v, wrapErr("AmoFetchAdd", err)
}

func AmoAnd[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) error {
	return wrapErr("AmoAnd", amo.And[T](inst.engine(), destPE, dst, value))
}

func AmoFetchAnd[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) (T, error) {
	v, err := amo.FetchAnd[T](inst.engine(), destPE, dst, value)
	return v, wrapErr("AmoFetchAnd", err)
}

func AmoOr[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) error {
	return wrapErr("AmoOr", amo.Or[T](inst.engine(), destPE, dst, value))
}

func AmoFetchOr[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) (T, error) {
	v, err := amo.FetchOr[T](inst.engine(), destPE, dst, value)
	return v, wrapErr("AmoFetchOr", err)
}

func AmoXor[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) error {
	return wrapErr("AmoXor", amo.Xor[T](inst.engine(), destPE, dst, value))
}

func AmoFetchXor[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) (T, error) {
	v, err := amo.FetchXor[T](inst.engine(), destPE, dst, value)
	return v, wrapErr("AmoFetchXor", err)
}

// AmoSwap atomically writes value to dst, returning its prior value.
func AmoSwap[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) (T, error) {
	v, err := amo.Swap[T](inst.engine(), destPE, dst, value)
	return v, wrapErr("AmoSwap", err)
}

// AmoCompareSwap atomically writes newVal to dst iff dst currently
// holds compare, returning dst's prior value either way.
func AmoCompareSwap[T rma.Number](inst *Instance, destPE int, dst uintptr, compare, newVal T) (T, error) {
	v, err := amo.CompareSwap[T](inst.engine(), destPE, dst, compare, newVal)
	return v, wrapErr("AmoCompareSwap", err)
}

// AmoHandle identifies an outstanding nonblocking fetching AMO; Wait
// decodes the typed return value once the completion lands.
type AmoHandle[T rma.Number] struct {
	amo.Handle[T]
}

// AmoFetchNbi, AmoFetchIncNbi, AmoFetchAddNbi, AmoFetchAndNbi,
// AmoFetchOrNbi, AmoFetchXorNbi, AmoSwapNbi, and AmoCompareSwapNbi are
// the nonblocking forms of every fetching AMO: each posts its request
// and returns an AmoHandle immediately instead of blocking for the
// typed result. Every nbi post counts against Config.NBICount, forcing
// an automatic Quiet once that many are outstanding.
func AmoFetchNbi[T rma.Number](inst *Instance, destPE int, dst uintptr) AmoHandle[T] {
	h := amo.FetchNbi[T](inst.Ring(), destPE, dst)
	inst.noteNbi()
	return AmoHandle[T]{h}
}

func AmoFetchIncNbi[T rma.Number](inst *Instance, destPE int, dst uintptr) AmoHandle[T] {
	h := amo.FetchIncNbi[T](inst.Ring(), destPE, dst)
	inst.noteNbi()
	return AmoHandle[T]{h}
}

func AmoFetchAddNbi[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) AmoHandle[T] {
	h := amo.FetchAddNbi[T](inst.Ring(), destPE, dst, value)
	inst.noteNbi()
	return AmoHandle[T]{h}
}

func AmoFetchAndNbi[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) AmoHandle[T] {
	h := amo.FetchAndNbi[T](inst.Ring(), destPE, dst, value)
	inst.noteNbi()
	return AmoHandle[T]{h}
}

func AmoFetchOrNbi[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) AmoHandle[T] {
	h := amo.FetchOrNbi[T](inst.Ring(), destPE, dst, value)
	inst.noteNbi()
	return AmoHandle[T]{h}
}

func AmoFetchXorNbi[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) AmoHandle[T] {
	h := amo.FetchXorNbi[T](inst.Ring(), destPE, dst, value)
	inst.noteNbi()
	return AmoHandle[T]{h}
}

func AmoSwapNbi[T rma.Number](inst *Instance, destPE int, dst uintptr, value T) AmoHandle[T] {
	h := amo.SwapNbi[T](inst.Ring(), destPE, dst, value)
	inst.noteNbi()
	return AmoHandle[T]{h}
}

func AmoCompareSwapNbi[T rma.Number](inst *Instance, destPE int, dst uintptr, compare, newVal T) AmoHandle[T] {
	h := amo.CompareSwapNbi[T](inst.Ring(), destPE, dst, compare, newVal)
	inst.noteNbi()
	return AmoHandle[T]{h}
}
