package dataset

import (
	"encoding/json"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitCounts(t *testing.T) {
	ratioList := []Ratios{
		{8, 1, 1}, {9, 1, 0}, {1, 1, 0}, {1, 1, 1}, {0, 0, 1}, {0, 1, 0}, {7, 2, 1}, {3, 0, 2}, {1, 2, 3},
	}
	for _, r := range ratioList {
		for n := 0; n <= 60; n++ {
			train, val, test, err := SplitCounts(n, r)
			require.NoError(t, err)
			require.Equal(t, n, train+val+test, "%v n=%v", r, n)
			require.GreaterOrEqual(t, val, 0)
			require.GreaterOrEqual(t, test, 0)
			total := float64(r.Total())
			require.Equal(t, int(math.RoundToEven(float64(n*r.Train)/total)), train, "%v n=%v", r, n)
			expectVal := int(math.RoundToEven(float64(n*r.Val) / total))
			require.Equal(t, min(expectVal, n-train), val, "%v n=%v", r, n)
		}
	}

	// Half to even
	train, val, test, _ := SplitCounts(5, Ratios{1, 1, 0})
	require.Equal(t, []int{2, 2, 1}, []int{train, val, test})
	// Both round up, so val is clamped
	train, val, test, _ = SplitCounts(3, Ratios{1, 1, 0})
	require.Equal(t, []int{2, 1, 0}, []int{train, val, test})
	train, val, test, _ = SplitCounts(10, Ratios{9, 1, 0})
	require.Equal(t, []int{9, 1, 0}, []int{train, val, test})

	_, _, _, err := SplitCounts(10, Ratios{0, 0, 0})
	require.ErrorIs(t, err, ErrConfiguration)
	_, _, _, err = SplitCounts(10, Ratios{-1, 2, 0})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestSplitDeterministic(t *testing.T) {
	a, err := Split(50, DefaultRatios, DefaultSeed)
	require.NoError(t, err)
	b, err := Split(50, DefaultRatios, DefaultSeed)
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := Split(50, DefaultRatios, 7)
	require.NoError(t, err)
	require.NotEqual(t, a.Groups, c.Groups)

	require.Equal(t, 40, a.Count(SplitTrain))
	require.Equal(t, 5, a.Count(SplitVal))
	require.Equal(t, 5, a.Count(SplitTest))

	// Groups are a partition of [0,n), consistent with Of
	all := []int{}
	for _, s := range AllSplits {
		for _, idx := range a.Groups[s] {
			require.Equal(t, s, a.Of[idx])
			all = append(all, idx)
		}
	}
	sort.Ints(all)
	for i := range all {
		require.Equal(t, i, all[i])
	}
}

func TestSplitEmpty(t *testing.T) {
	a, err := Split(0, DefaultRatios, DefaultSeed)
	require.NoError(t, err)
	require.Empty(t, a.Of)
	_, err = Split(5, Ratios{}, DefaultSeed)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestBoundedRandUniform(t *testing.T) {
	a, err := Split(1, DefaultRatios, 1)
	require.NoError(t, err)
	require.Equal(t, SplitTrain, a.Of[0])

	// Every index should land in every position eventually
	hits := [4][4]int{}
	for seed := uint64(0); seed < 2000; seed++ {
		a, err := Split(4, Ratios{1, 1, 2}, seed)
		require.NoError(t, err)
		pos := 0
		for _, s := range AllSplits {
			for _, idx := range a.Groups[s] {
				hits[idx][pos]++
				pos++
			}
		}
	}
	for i := range hits {
		for j := range hits[i] {
			require.Greater(t, hits[i][j], 350, "index %v at position %v", i, j)
		}
	}
}

func TestParseRatios(t *testing.T) {
	r, err := ParseRatios("8,1,1")
	require.NoError(t, err)
	require.Equal(t, DefaultRatios, r)
	r, err = ParseRatios(" 9 : 1 : 0 ")
	require.NoError(t, err)
	require.Equal(t, Ratios{9, 1, 0}, r)
	require.Equal(t, "9:1:0", r.String())

	for _, bad := range []string{"", "8,1", "8,1,1,1", "a,b,c", "0,0,0", "-1,1,1"} {
		_, err = ParseRatios(bad)
		require.ErrorIs(t, err, ErrConfiguration, bad)
	}

	j, err := json.Marshal(Ratios{7, 2, 1})
	require.NoError(t, err)
	require.Equal(t, "[7,2,1]", string(j))
	require.NoError(t, json.Unmarshal([]byte("[1,2,3]"), &r))
	require.Equal(t, Ratios{1, 2, 3}, r)
	require.Error(t, json.Unmarshal([]byte(`{"train":1}`), &r))
}
