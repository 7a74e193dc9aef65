package payoffexpr

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/valuation/algorithm/finance"
	"github.com/wyfcoding/valuation/xerrors"
)

func TestCompileMatchesBuiltinPayoffs(t *testing.T) {
	e := NewEngine()

	call, err := e.Compile("max(S - K, 0)", 10)
	require.NoError(t, err)
	put, err := e.Compile("max(K - S, 0.0)", 10)
	require.NoError(t, err)

	for _, s := range []float64{0, 5, 9.99, 10, 10.01, 25} {
		assert.InDelta(t, finance.CallPayoff(10)(s), call(s), 1e-12, "call at S=%v", s)
		assert.InDelta(t, finance.PutPayoff(10)(s), put(s), 1e-12, "put at S=%v", s)
	}
}

func TestCompiledPayoffOnLattice(t *testing.T) {
	p, err := finance.NewMarketParameters(10, 10, 5, 0.45, 0.05, 0, 500)
	require.NoError(t, err)
	pricer := finance.NewBinomialPricer(p)

	e := NewEngine()
	put, err := e.Compile("max(K - S, 0)", p.Strike)
	require.NoError(t, err)

	got, err := pricer.Value(put, finance.ExerciseAmerican)
	require.NoError(t, err)
	want, err := pricer.PutPrice(finance.ExerciseAmerican)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-12)

	// 现金或无价值数字期权: 价格介于 0 与贴现面值之间
	digital, err := e.Compile("S > K ? 1 : 0", p.Strike)
	require.NoError(t, err)
	v, err := pricer.Value(digital, finance.ExerciseEuropean)
	require.NoError(t, err)
	assert.Greater(t, v, 0.0)
	assert.Less(t, v, math.Exp(-0.05*5))
}

func TestCompileErrors(t *testing.T) {
	e := NewEngine()

	_, err := e.Compile("", 10)
	assert.ErrorIs(t, err, xerrors.ErrInvalidPayoff)

	_, err = e.Compile("max(S - K,", 10)
	assert.ErrorIs(t, err, xerrors.ErrInvalidPayoff)

	_, err = e.Compile("max(X - K, 0)", 10)
	assert.ErrorIs(t, err, xerrors.ErrInvalidPayoff)

	assert.ErrorIs(t, e.Validate("S > K"), xerrors.ErrInvalidPayoff)
	assert.NoError(t, e.Validate("abs(S - K)"))

	bad, err := e.Compile(`S > K ? "itm" : 0`, 10)
	if err == nil {
		assert.True(t, math.IsNaN(bad(20)))
	}
}

func TestProgramCache(t *testing.T) {
	e := NewEngine()
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Compile(" max(S - K, 0) ", 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, e.Len())

	for i := range maxPrograms + 1 {
		_, err := e.Compile(fmt.Sprintf("S * %d + %d", i%10, i), 1)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, e.Len(), maxPrograms)
}
