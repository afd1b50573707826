package energy

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInvalidAmount is returned by Take for amounts that are not positive
// finite numbers.
var ErrInvalidAmount = errors.New("joules must be a positive finite number")

// TakeResult is the outcome of a debit. An insufficient balance is reported
// with OK false and is not an error.
//
// Seq numbers debits in the order the ledger applied them, starting at 1.
// It is zero for rejected amounts and is not part of the wire format.
type TakeResult struct {
	OK         bool    `json:"ok"`
	RemainingJ float64 `json:"remaining_j"`
	Seq        uint64  `json:"-"`
}

// Ledger is the in-memory joule bucket. The sampler credits it every tick
// and callers debit it with Take. The zero value is an empty ledger.
type Ledger struct {
	mu      sync.Mutex
	bucketJ float64
	seq     uint64
}

// Credit adds j joules and returns the new balance.
func (l *Ledger) Credit(j float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bucketJ += j
	return l.bucketJ
}

// Take atomically debits j joules if the balance covers it. Otherwise the
// ledger is left untouched and the current balance is reported.
func (l *Ledger) Take(j float64) (TakeResult, error) {
	if !(j > 0) || math.IsInf(j, 1) {
		return TakeResult{RemainingJ: l.Balance()}, fmt.Errorf("%w: got %v", ErrInvalidAmount, j)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	if l.bucketJ < j {
		return TakeResult{OK: false, RemainingJ: l.bucketJ, Seq: l.seq}, nil
	}
	l.bucketJ -= j
	return TakeResult{OK: true, RemainingJ: l.bucketJ, Seq: l.seq}, nil
}

// Balance returns the current number of joules in the bucket.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bucketJ
}
