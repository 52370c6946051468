package s2_universe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/cbquant/pkg/logger"
)

func TestFilter_Apply(t *testing.T) {
	p := testPanel(t)
	f := NewFilter(logger.Nop())

	elig, err := f.Apply(p, []string{"left_years < 1", "turnover > 3", "ytm > 0"}, 1)
	require.NoError(t, err)

	// A: left_years, B: redemption, D: turnover; C survives
	assert.Equal(t, []bool{true, true, false, true}, elig.Excluded)
	assert.Equal(t, 1, elig.BaseMatched)
	assert.Empty(t, elig.Relaxed)

	require.Len(t, elig.Predicates, 3)
	assert.Equal(t, 1, elig.Predicates[0].Matched)
	assert.Equal(t, 1, elig.Predicates[1].Matched)
	assert.NotEmpty(t, elig.Predicates[2].Error, "unknown field is reported, not fatal")
	assert.Len(t, elig.PredicateErrors(), 1)
}

func TestFilter_MonotonicOr(t *testing.T) {
	p := testPanel(t)
	f := NewFilter(logger.Nop())

	// the second condition matches nothing and must not re-include A
	elig, err := f.Apply(p, []string{"close < 105", "close > 1000"}, 1)
	require.NoError(t, err)
	assert.True(t, elig.Excluded[0])
	assert.Equal(t, 0, elig.Predicates[1].Matched)
}

func TestFilter_MinCountOverride(t *testing.T) {
	p := testPanel(t)

	var buf bytes.Buffer
	f := NewFilter(logger.NewWithWriter(&buf, "warn"))

	// only C is eligible, hold_num 3 forces the whole date back in
	elig, err := f.Apply(p, []string{"left_years < 1", "turnover > 3"}, 3)
	require.NoError(t, err)

	assert.Equal(t, []bool{false, false, false, false}, elig.Excluded)
	assert.Equal(t, []string{"20240102"}, elig.Relaxed)
	assert.Contains(t, buf.String(), "Too few eligible instruments")
}

func TestFilter_FreshOnEachCall(t *testing.T) {
	p := testPanel(t)
	f := NewFilter(logger.Nop())

	first, err := f.Apply(p, []string{"close > 105"}, 1)
	require.NoError(t, err)
	second, err := f.Apply(p, nil, 1)
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true, true, true}, first.Excluded)
	assert.Equal(t, []bool{false, true, false, false}, second.Excluded)
}

func TestFilter_InvalidInput(t *testing.T) {
	p := testPanel(t)
	_, err := NewFilter(logger.Nop()).Apply(p, nil, 0)
	assert.Error(t, err)
}

func TestValidateConditions(t *testing.T) {
	p := testPanel(t)
	assert.NoError(t, ValidateConditions([]string{"close > 1", "rating == 'AA'"}, p))

	err := ValidateConditions([]string{"close > 1", "nope > 1", "close >"}, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestRedemptionStatuses(t *testing.T) {
	assert.Len(t, RedemptionStatuses, 5)
	assert.False(t, RedemptionStatuses[""])
	assert.True(t, RedemptionStatuses["已满足强赎条件"])
}
