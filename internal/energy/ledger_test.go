package energy

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerTakeSequence(t *testing.T) {
	t.Parallel()
	var l Ledger
	l.Credit(100)

	res, err := l.Take(30)
	require.NoError(t, err)
	assert.Equal(t, TakeResult{OK: true, RemainingJ: 70, Seq: 1}, res)

	res, err = l.Take(80)
	require.NoError(t, err)
	assert.Equal(t, TakeResult{OK: false, RemainingJ: 70, Seq: 2}, res)

	res, err = l.Take(70)
	require.NoError(t, err)
	assert.Equal(t, TakeResult{OK: true, RemainingJ: 0, Seq: 3}, res)

	assert.Equal(t, 0.0, l.Balance())
}

func TestLedgerRejectsInvalidAmounts(t *testing.T) {
	t.Parallel()
	for _, j := range []float64{0, -5, math.NaN(), math.Inf(1), math.Inf(-1)} {
		var l Ledger
		l.Credit(10)

		res, err := l.Take(j)
		require.ErrorIs(t, err, ErrInvalidAmount, "amount %v", j)
		assert.False(t, res.OK)
		assert.Zero(t, res.Seq)
		assert.Equal(t, 10.0, res.RemainingJ)
		assert.Equal(t, 10.0, l.Balance(), "amount %v must not change the ledger", j)
	}
}

func TestLedgerCreditReturnsBalance(t *testing.T) {
	t.Parallel()
	var l Ledger
	assert.Equal(t, 1.5, l.Credit(1.5))
	assert.Equal(t, 4.0, l.Credit(2.5))
}

func TestLedgerConcurrentTakesNeverOverdraw(t *testing.T) {
	t.Parallel()
	var l Ledger
	l.Credit(100)

	const takers = 400
	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < takers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Take(1)
			if err != nil {
				t.Error(err)
				return
			}
			if res.OK {
				granted.Add(1)
			}
			if res.RemainingJ < 0 {
				t.Errorf("negative balance observed: %v", res.RemainingJ)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), granted.Load())
	assert.Equal(t, 0.0, l.Balance())
}

func TestLedgerConcurrentTakesWithCredits(t *testing.T) {
	t.Parallel()
	var l Ledger
	l.Credit(50)

	const (
		credits = 200
		takers  = 500
		amount  = 2.0
	)
	var granted atomic.Int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < credits; i++ {
			l.Credit(1)
		}
	}()
	for i := 0; i < takers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, _ := l.Take(amount); res.OK {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	spent := float64(granted.Load()) * amount
	assert.LessOrEqual(t, spent, 50.0+credits)
	assert.InDelta(t, 50+credits-spent, l.Balance(), 1e-9)
	assert.GreaterOrEqual(t, l.Balance(), 0.0)
}

func TestLedgerSeqOrdersConcurrentTakes(t *testing.T) {
	t.Parallel()
	var l Ledger
	l.Credit(100)

	const takers = 150
	results := make([]TakeResult, takers)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Take(1)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	slices.SortFunc(results, func(a, b TakeResult) int {
		return int(a.Seq) - int(b.Seq)
	})
	balance := 100.0
	for i, res := range results {
		require.Equal(t, uint64(i+1), res.Seq)
		if res.OK {
			balance--
		}
		require.Equal(t, balance, res.RemainingJ, "seq %d", res.Seq)
	}
}
