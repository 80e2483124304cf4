package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"
	"strconv"
	"strings"
)

// DefaultSeed is the shuffle seed used when the caller doesn't specify one
const DefaultSeed = 42

// SplitKind identifies one of the dataset partitions
type SplitKind int

const (
	SplitTrain SplitKind = iota
	SplitVal
	SplitTest
)

// AllSplits lists the partitions in manifest order
var AllSplits = []SplitKind{SplitTrain, SplitVal, SplitTest}

func (s SplitKind) String() string {
	switch s {
	case SplitTrain:
		return "train"
	case SplitVal:
		return "val"
	case SplitTest:
		return "test"
	}
	return fmt.Sprintf("SplitKind(%d)", int(s))
}

func (s SplitKind) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Ratios are the relative sizes of the train, val and test splits, eg 8:1:1
type Ratios struct {
	Train int `json:"train"`
	Val   int `json:"val"`
	Test  int `json:"test"`
}

// DefaultRatios is 8:1:1
var DefaultRatios = Ratios{Train: 8, Val: 1, Test: 1}

func (r Ratios) Total() int {
	return r.Train + r.Val + r.Test
}

func (r Ratios) Validate() error {
	if r.Train < 0 || r.Val < 0 || r.Test < 0 {
		return configErrorf("split ratios may not be negative (%v)", r)
	}
	if r.Total() == 0 {
		return configErrorf("split ratios must not all be zero")
	}
	return nil
}

func (r Ratios) String() string {
	return fmt.Sprintf("%d:%d:%d", r.Train, r.Val, r.Test)
}

// Ratios are written as a [train, val, test] array in config files and API requests
func (r Ratios) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{r.Train, r.Val, r.Test})
}

func (r *Ratios) UnmarshalJSON(b []byte) error {
	var a [3]int
	if err := json.Unmarshal(b, &a); err != nil {
		return fmt.Errorf("ratios must be an array of 3 integers: %w", err)
	}
	*r = Ratios{Train: a[0], Val: a[1], Test: a[2]}
	return nil
}

// ParseRatios parses a string such as "8,1,1" or "8:1:1"
func ParseRatios(s string) (Ratios, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ':' })
	if len(parts) != 3 {
		return Ratios{}, configErrorf("expected 3 split ratios, got '%v'", s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Ratios{}, configErrorf("invalid split ratio '%v'", p)
		}
		v[i] = n
	}
	r := Ratios{Train: v[0], Val: v[1], Test: v[2]}
	return r, r.Validate()
}

// SplitCounts returns the number of records that go into each split.
// Train and val are rounded half to even, and test absorbs the remainder.
func SplitCounts(n int, ratios Ratios) (train, val, test int, err error) {
	if err = ratios.Validate(); err != nil {
		return
	}
	if n < 0 {
		err = configErrorf("record count may not be negative")
		return
	}
	total := float64(ratios.Total())
	train = int(math.RoundToEven(float64(n*ratios.Train) / total))
	val = int(math.RoundToEven(float64(n*ratios.Val) / total))
	// Both train and val can round up, eg n=3 with 1:1:0
	val = min(val, n-train)
	test = n - train - val
	return
}

// Assignment maps every record index to a split
type Assignment struct {
	Of     []SplitKind // Of[i] is the split of record i
	Groups [3][]int    // Record indices per split, in shuffled order
}

func (a *Assignment) Count(s SplitKind) int {
	return len(a.Groups[s])
}

// Split shuffles the indices [0,n) with a seeded math/rand/v2 PCG source, and partitions them according to ratios.
// The shuffle and the bounded draw are done here rather than with rand.Shuffle, so that the
// result for a given seed depends only on the PCG output stream.
func Split(n int, ratios Ratios, seed uint64) (*Assignment, error) {
	nTrain, nVal, _, err := SplitCounts(n, ratios)
	if err != nil {
		return nil, err
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	src := rand.NewPCG(seed, seed)
	for i := n - 1; i > 0; i-- {
		j := int(boundedRand(src, uint64(i+1)))
		perm[i], perm[j] = perm[j], perm[i]
	}

	a := &Assignment{
		Of: make([]SplitKind, n),
	}
	a.Groups[SplitTrain] = perm[:nTrain]
	a.Groups[SplitVal] = perm[nTrain : nTrain+nVal]
	a.Groups[SplitTest] = perm[nTrain+nVal:]
	for _, s := range AllSplits {
		for _, idx := range a.Groups[s] {
			a.Of[idx] = s
		}
	}
	return a, nil
}

// boundedRand returns a uniform value in [0,n), using Lemire's multiply-shift method
func boundedRand(src *rand.PCG, n uint64) uint64 {
	hi, lo := bits.Mul64(src.Uint64(), n)
	if lo < n {
		thresh := -n % n
		for lo < thresh {
			hi, lo = bits.Mul64(src.Uint64(), n)
		}
	}
	return hi
}
