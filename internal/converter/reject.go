package converter

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// maxFolds bounds the cross-validation split count.
	maxFolds = 5
	// maxCandidates bounds how many thresholds are scored; larger candidate
	// sets are reduced to an empirical quantile grid.
	maxCandidates = 64
	// tolerance is the relative error margin within which a larger
	// threshold is preferred over the strict minimum.
	tolerance = 0.05
)

// estimateThreshold picks a global peak-to-peak rejection threshold.
//
// Candidates are the observed per-window peak-to-peak maxima. Each one is
// scored by contiguous K-fold cross-validation: the mean of the training
// windows that pass the candidate is compared, by RMSE, with the
// element-wise median of the held-out fold. The largest candidate whose
// mean error is within tolerance of the best one is returned.
func estimateThreshold(ctx context.Context, epochs [][]float64, ptp []float64) (float64, error) {
	n := len(epochs)
	if n < 2 {
		return 0, fmt.Errorf("%w: %d windows, need at least 2 to estimate a threshold", ErrEmptyResult, n)
	}
	dim := len(epochs[0])
	k := min(maxFolds, n)
	folds := contiguousFolds(n, k)

	medians := make([][]float64, k)
	for f, idx := range folds {
		medians[f] = elementwiseMedian(epochs, idx, dim)
	}
	foldOf := make([]int, n)
	for f, idx := range folds {
		for _, i := range idx {
			foldOf[i] = f
		}
	}

	cands := candidates(ptp)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return ptp[order[a]] < ptp[order[b]] })

	total := make([]float64, dim)
	foldSum := make([][]float64, k)
	for f := range foldSum {
		foldSum[f] = make([]float64, dim)
	}
	foldCount := make([]int, k)
	count := 0

	mean := make([]float64, dim)
	errs := make([]float64, len(cands))
	next := 0
	for ci, thr := range cands {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		for next < n && ptp[order[next]] <= thr {
			i := order[next]
			floats.Add(total, epochs[i])
			floats.Add(foldSum[foldOf[i]], epochs[i])
			foldCount[foldOf[i]]++
			count++
			next++
		}

		var sum float64
		for f := 0; f < k; f++ {
			train := count - foldCount[f]
			if train == 0 {
				sum = math.Inf(1)
				break
			}
			floats.SubTo(mean, total, foldSum[f])
			floats.Scale(1/float64(train), mean)
			sum += floats.Distance(mean, medians[f], 2) / math.Sqrt(float64(dim))
		}
		errs[ci] = sum / float64(k)
	}

	best := math.Inf(1)
	for _, e := range errs {
		best = min(best, e)
	}
	if math.IsInf(best, 1) {
		return 0, fmt.Errorf("%w: no threshold leaves training windows in every fold", ErrEmptyResult)
	}
	margin := tolerance * max(best, medianRMS(epochs))
	chosen := cands[0]
	for ci, thr := range cands {
		if errs[ci] <= best+margin {
			chosen = thr
		}
	}
	return chosen, nil
}

// candidates returns the sorted distinct values of ptp, reduced to an
// empirical quantile grid when there are too many.
func candidates(ptp []float64) []float64 {
	sorted := append([]float64(nil), ptp...)
	sort.Float64s(sorted)

	if len(sorted) > maxCandidates {
		grid := make([]float64, maxCandidates)
		for i := range grid {
			p := float64(i) / float64(maxCandidates-1)
			grid[i] = stat.Quantile(p, stat.Empirical, sorted, nil)
		}
		sorted = grid
	}

	out := make([]float64, 0, len(sorted))
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// contiguousFolds splits [0,n) into k consecutive folds; the first n%k
// folds get one extra element.
func contiguousFolds(n, k int) [][]int {
	folds := make([][]int, k)
	start := 0
	for f := range folds {
		size := n / k
		if f < n%k {
			size++
		}
		idx := make([]int, size)
		for i := range idx {
			idx[i] = start + i
		}
		folds[f] = idx
		start += size
	}
	return folds
}

func elementwiseMedian(epochs [][]float64, idx []int, dim int) []float64 {
	out := make([]float64, dim)
	if len(idx) == 1 {
		copy(out, epochs[idx[0]])
		return out
	}
	col := make([]float64, len(idx))
	for d := 0; d < dim; d++ {
		for j, i := range idx {
			col[j] = epochs[i][d]
		}
		out[d] = median(col)
	}
	return out
}

// median sorts xs in place.
func median(xs []float64) float64 {
	sort.Float64s(xs)
	m := len(xs) / 2
	if len(xs)%2 == 1 {
		return xs[m]
	}
	return (xs[m-1] + xs[m]) / 2
}

// medianRMS is the typical amplitude scale of a window; it keeps the
// tolerance meaningful when all windows are nearly identical.
func medianRMS(epochs [][]float64) float64 {
	rms := make([]float64, len(epochs))
	for i, e := range epochs {
		rms[i] = floats.Norm(e, 2) / math.Sqrt(float64(len(e)))
	}
	return median(rms)
}
