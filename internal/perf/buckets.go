package perf

import (
	"fmt"
	"strconv"
	"strings"
)

// NumBuckets covers <=10%, twelve 10-point bands up to 130%, and >130%.
const NumBuckets = 14

// BucketIndex returns the bucket holding ratio.
func BucketIndex(ratio float64) int {
	for i := 1; i < NumBuckets; i++ {
		if ratio <= float64(i)/10 {
			return i - 1
		}
	}
	return NumBuckets - 1
}

func BucketLabel(i int) string {
	switch {
	case i <= 0:
		return "<=10%"
	case i >= NumBuckets-1:
		return ">130%"
	}
	return fmt.Sprintf("%d-%d%%", i*10, (i+1)*10)
}

// Buckets holds total system size per performance band.
type Buckets [NumBuckets]float64

// Accumulator sums system sizes into one bucket set per period.
type Accumulator struct {
	sets  [len(Periods)]Buckets
	sites int
}

// Add places a site's system size into the bucket of each period's ratio.
// Sites whose size is not numeric are skipped and Add reports false.
func (a *Accumulator) Add(pvSize string, triples [len(Periods)]Triple) bool {
	size, err := strconv.ParseFloat(strings.TrimSpace(pvSize), 64)
	if err != nil {
		return false
	}
	for _, p := range Periods {
		a.sets[p][BucketIndex(triples[p].Ratio)] += size
	}
	a.sites++
	return true
}

func (a *Accumulator) Totals(p Period) Buckets {
	return a.sets[p]
}

// Sites is the number of sites added.
func (a *Accumulator) Sites() int {
	return a.sites
}
