package types

// Amount is an unsigned quantity of the smallest denomination. Every
// arithmetic helper detects overflow/underflow and reports it rather than
// wrapping, per the ledger's "checked arithmetic throughout" invariant.
type Amount uint64

// DecimalScaleFactor is the smallest-denomination scale: 1 coin == this
// many Amount units, mirroring the original node's DECIMAL_SCALE_FACTOR.
const DecimalScaleFactor = 10000

// Add returns a+b and true, or (0, false) if the sum overflows uint64.
func (a Amount) Add(b Amount) (Amount, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// Sub returns a-b and true, or (0, false) if b > a (underflow).
func (a Amount) Sub(b Amount) (Amount, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}

// SignedDelta is a reversible per-wallet balance change produced by the
// Executor. A positive delta is a net deposit; a negative delta is a net
// withdrawal. Rollback interprets a negative delta as a deposit of the
// absolute value.
type SignedDelta int64

// Apply adds the delta to balance, returning the new balance and whether
// the application is representable (no overflow on deposit, no underflow
// on withdrawal).
func (d SignedDelta) Apply(balance Amount) (Amount, bool) {
	if d >= 0 {
		return balance.Add(Amount(d))
	}
	return balance.Sub(Amount(-d))
}

// Invert returns the delta that undoes d.
func (d SignedDelta) Invert() SignedDelta {
	return -d
}
