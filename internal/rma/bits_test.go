package rma

import "testing"

func roundTrip[T Number](t *testing.T, v T) {
	t.Helper()
	got := fromBits[T](toBits(v))
	if got != v {
		t.Errorf("round trip %T: got %v, want %v", v, got, v)
	}
}

func TestBitsRoundTripUnsigned(t *testing.T) {
	roundTrip[uint8](t, 0xFF)
	roundTrip[uint16](t, 0xFFFF)
	roundTrip[uint32](t, 0xFFFFFFFF)
	roundTrip[uint64](t, 0xFFFFFFFFFFFFFFFF)
}

func TestBitsRoundTripSignedNegative(t *testing.T) {
	roundTrip[int8](t, -1)
	roundTrip[int8](t, -128)
	roundTrip[int16](t, -30000)
	roundTrip[int32](t, -2000000000)
	roundTrip[int64](t, -9223372036854775808)
}

func TestBitsRoundTripFloat(t *testing.T) {
	roundTrip[float32](t, 3.1415927)
	roundTrip[float32](t, -0.0)
	roundTrip[float64](t, 2.718281828459045)
}

func TestTypeOfMapsEveryNumberType(t *testing.T) {
	if TypeOf[uint8]() == TypeOf[int8]() {
		t.Fatal("uint8 and int8 must map to distinct wire types")
	}
	if TypeOf[float32]() == TypeOf[float64]() {
		t.Fatal("float32 and float64 must map to distinct wire types")
	}
}

func TestFastPathCutovers(t *testing.T) {
	if !UseFastPath(1) {
		t.Error("a 1-byte transfer must stay under the RMA cutover")
	}
	if UseFastPath(1 << 30) {
		t.Error("a 1GB transfer must exceed the RMA cutover")
	}
	if !UseStridedFastPath(1) {
		t.Error("a 1-byte strided transfer must stay under the strided cutover")
	}
	if UseStridedFastPath(1 << 30) {
		t.Error("a 1GB strided transfer must exceed the strided cutover")
	}
}
