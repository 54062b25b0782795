// Package orderstat implements deterministic linear-time selection
// (median of medians) over unsigned latency samples.
package orderstat

import (
	"fmt"
	"math"
)

// groupSize is the number of elements per median group. Five is the
// smallest odd group size that keeps the recursion linear.
const groupSize = 5

// Select returns the k-th smallest value (1-based rank) of a in worst-case
// O(n) time. a is partitioned in place; callers that need the original order
// must pass a copy.
//
// Select panics if k is outside [1, len(a)].
func Select(a []uint64, k int) uint64 {
	if k < 1 || k > len(a) {
		panic(fmt.Sprintf("orderstat: rank %d out of range [1, %d]", k, len(a)))
	}
	return selectRange(a, 0, len(a)-1, k)
}

// Percentile returns the value at quantile q (0 < q <= 1) of samples
// using nearest-rank. samples is not modified. Returns 0 for an empty slice.
func Percentile(samples []uint64, q float64) uint64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	if q <= 0 || q > 1 || math.IsNaN(q) {
		panic(fmt.Sprintf("orderstat: quantile %v out of range (0, 1]", q))
	}
	k := int(math.Ceil(q * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	scratch := make([]uint64, n)
	copy(scratch, samples)
	return Select(scratch, k)
}

// Median returns the lower median of samples without modifying it.
func Median(samples []uint64) uint64 {
	if len(samples) == 0 {
		return 0
	}
	scratch := make([]uint64, len(samples))
	copy(scratch, samples)
	return Select(scratch, (len(scratch)+1)/2)
}

// selectRange finds the k-th smallest value within a[left..right].
func selectRange(a []uint64, left, right, k int) uint64 {
	for {
		if left == right {
			return a[left]
		}

		pivot := medianOfMedians(a, left, right)
		lt, gt := partition(a, left, right, pivot)

		less := lt - left
		equal := gt - lt + 1
		switch {
		case k <= less:
			right = lt - 1
		case k <= less+equal:
			return pivot
		default:
			k -= less + equal
			left = gt + 1
		}
	}
}

// medianOfMedians returns a pivot value for a[left..right]. The group
// medians are gathered at the front of the range before recursing on them.
func medianOfMedians(a []uint64, left, right int) uint64 {
	n := right - left + 1
	if n <= groupSize {
		insertionSort(a, left, right)
		return a[left+(n-1)/2]
	}

	store := left
	for i := left; i <= right; i += groupSize {
		end := i + groupSize - 1
		if end > right {
			end = right
		}
		insertionSort(a, i, end)
		mid := i + (end-i)/2
		a[store], a[mid] = a[mid], a[store]
		store++
	}

	medians := store - left
	return selectRange(a, left, store-1, (medians+1)/2)
}

// partition performs a three-way partition of a[left..right] around pivot.
// On return a[left:lt] < pivot, a[lt:gt+1] == pivot and a[gt+1:right+1] > pivot.
func partition(a []uint64, left, right int, pivot uint64) (lt, gt int) {
	lt, gt = left, right
	i := left
	for i <= gt {
		switch {
		case a[i] < pivot:
			a[lt], a[i] = a[i], a[lt]
			lt++
			i++
		case a[i] > pivot:
			a[i], a[gt] = a[gt], a[i]
			gt--
		default:
			i++
		}
	}
	return lt, gt
}

func insertionSort(a []uint64, left, right int) {
	for i := left + 1; i <= right; i++ {
		v := a[i]
		j := i - 1
		for j >= left && a[j] > v {
			a[j+1] = a[j]
			j--
		}
		a[j+1] = v
	}
}
