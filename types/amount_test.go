package types

import "testing"

func TestAmountAddOverflow(t *testing.T) {
	_, ok := Amount(1).Add(^Amount(0))
	if ok {
		t.Errorf("Add: expected overflow to be detected")
	}
}

func TestAmountSubUnderflow(t *testing.T) {
	_, ok := Amount(1).Sub(Amount(2))
	if ok {
		t.Errorf("Sub: expected underflow to be detected")
	}
}

func TestAmountAddSub(t *testing.T) {
	sum, ok := Amount(5).Add(Amount(3))
	if !ok || sum != 8 {
		t.Errorf("Add: got (%d, %v), want (8, true)", sum, ok)
	}
	diff, ok := Amount(8).Sub(Amount(3))
	if !ok || diff != 5 {
		t.Errorf("Sub: got (%d, %v), want (5, true)", diff, ok)
	}
}

func TestSignedDeltaInvert(t *testing.T) {
	d := SignedDelta(42)
	if d.Invert() != -42 {
		t.Errorf("Invert: got %d, want -42", d.Invert())
	}

	balance, ok := d.Apply(Amount(10))
	if !ok || balance != 52 {
		t.Errorf("Apply(10): got (%d, %v), want (52, true)", balance, ok)
	}

	inverse := d.Invert()
	restored, ok := inverse.Apply(balance)
	if !ok || restored != 10 {
		t.Errorf("Apply(inverse): got (%d, %v), want (10, true)", restored, ok)
	}
}
