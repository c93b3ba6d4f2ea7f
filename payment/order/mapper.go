// Map a requested amount onto a (receiving address, payment amount) pair that
// no other pending order holds, so one wallet can serve many orders at once:
// the exact amount received on-chain tells the orders apart.

package order

import (
	"github.com/shopspring/decimal"
)

type Allocation struct {
	Address string
	Amount  decimal.Decimal
}

// TakenFunc reports whether a pending order already holds address+amount.
type TakenFunc func(address string, amount decimal.Decimal) bool

// Disambiguate probes every candidate at base, then at base+step,
// base+2*step, ... up to maxRounds increments, and returns the first free
// pair. Candidates are probed in the given order at each amount level.
func Disambiguate(candidates []string, base decimal.Decimal, taken TakenFunc, step decimal.Decimal, maxRounds int) (Allocation, error) {
	if len(candidates) == 0 {
		return Allocation{}, ErrNoAddressConfigured
	}

	amount := base
	for round := 0; round <= maxRounds; round++ {
		for _, address := range candidates {
			if !taken(address, amount) {
				return Allocation{Address: address, Amount: amount}, nil
			}
		}
		amount = amount.Add(step)
	}
	return Allocation{}, ErrAllocationExhausted
}

// BaseAmount converts a fiat amount to the token amount at the given rate,
// rounded half away from zero to decimals places.
func BaseAmount(actual, rate decimal.Decimal, decimals int32) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, ErrRateUnavailable
	}
	amount := actual.DivRound(rate, decimals+8).Round(decimals)
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

// takenIndex answers TakenFunc from the pending amounts of a set of
// addresses, stored as integer units of 10^-decimals in one IntervalSet per
// address.
type takenIndex struct {
	decimals int32
	sets     map[string]*IntervalSet
}

func newTakenIndex(decimals int32) *takenIndex {
	return &takenIndex{decimals: decimals, sets: make(map[string]*IntervalSet)}
}

// units returns amount in 10^-decimals units; ok is false when amount has
// more precision than that.
func (ti *takenIndex) units(amount decimal.Decimal) (int64, bool) {
	shifted := amount.Shift(ti.decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, false
	}
	return shifted.IntPart(), true
}

func (ti *takenIndex) add(address string, amount decimal.Decimal) {
	u, ok := ti.units(amount)
	if !ok {
		// cannot collide with an amount probed at this precision
		return
	}
	set, ok := ti.sets[address]
	if !ok {
		set = NewIntervalSet()
		ti.sets[address] = set
	}
	set.Add(u)
}

func (ti *takenIndex) taken(address string, amount decimal.Decimal) bool {
	set, ok := ti.sets[address]
	if !ok {
		return false
	}
	u, ok := ti.units(amount)
	return ok && set.Contains(u)
}

// nextFree returns the lowest free amount >= base on a single address with
// one NextMissing lookup. handled is false when step is not exactly one unit
// or base has more precision than the index; Disambiguate covers those.
func (ti *takenIndex) nextFree(address string, base, step decimal.Decimal, maxRounds int) (alloc Allocation, handled bool, err error) {
	stepUnits, ok := ti.units(step)
	if !ok || stepUnits != 1 {
		return Allocation{}, false, nil
	}
	from, ok := ti.units(base)
	if !ok {
		return Allocation{}, false, nil
	}
	next := from
	if set, ok := ti.sets[address]; ok {
		next = set.NextMissing(from)
	}
	if next-from > int64(maxRounds) {
		return Allocation{}, true, ErrAllocationExhausted
	}
	return Allocation{Address: address, Amount: decimal.New(next, -ti.decimals)}, true, nil
}
