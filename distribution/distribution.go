// Copyright 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package distribution implements the histogram algebra used to merge
// sampled MetricValues: creating distributions with exponential, linear, or
// explicit buckets, adding samples to them with Welford's online recurrence,
// and merging two distributions that share bucket options.
package distribution

import (
	"errors"
	"fmt"
	"math"
	"sort"

	sc "google.golang.org/api/servicecontrol/v1"
)

const epsilon = 1e-5

// NewExponential creates a Distribution with exponential buckets: bucket 0
// holds samples <= scale, bucket numFiniteBuckets+1 holds the overflow, and
// each finite bucket i in between covers [scale*growthFactor^(i-1),
// scale*growthFactor^i), except that a sample equal to scale goes to
// bucket 0.
func NewExponential(numFiniteBuckets int, growthFactor, scale float64) (*sc.Distribution, error) {
	if numFiniteBuckets <= 0 {
		return nil, errors.New("distribution: number of finite buckets should be > 0")
	}
	if growthFactor <= 1.0 {
		return nil, errors.New("distribution: growth factor should be > 1.0")
	}
	if scale <= 0.0 {
		return nil, errors.New("distribution: scale should be > 0.0")
	}
	return &sc.Distribution{
		BucketCounts: make([]int64, numFiniteBuckets+2),
		ExponentialBuckets: &sc.ExponentialBuckets{
			NumFiniteBuckets: int64(numFiniteBuckets),
			GrowthFactor:     growthFactor,
			Scale:            scale,
		},
	}, nil
}

// NewLinear creates a Distribution with numFiniteBuckets buckets of equal
// width, starting at offset.
func NewLinear(numFiniteBuckets int, width, offset float64) (*sc.Distribution, error) {
	if numFiniteBuckets <= 0 {
		return nil, errors.New("distribution: number of finite buckets should be > 0")
	}
	if width <= 0.0 {
		return nil, errors.New("distribution: width should be > 0.0")
	}
	return &sc.Distribution{
		BucketCounts: make([]int64, numFiniteBuckets+2),
		LinearBuckets: &sc.LinearBuckets{
			NumFiniteBuckets: int64(numFiniteBuckets),
			Width:            width,
			Offset:           offset,
		},
	}, nil
}

// NewExplicit creates a Distribution whose buckets are bounded by the given,
// distinct bounds. len(bounds)+1 buckets are created.
func NewExplicit(bounds []float64) (*sc.Distribution, error) {
	safe := append([]float64(nil), bounds...)
	sort.Float64s(safe)
	for i := 1; i < len(safe); i++ {
		if safe[i] == safe[i-1] {
			return nil, errors.New("distribution: bounds contains a duplicate value")
		}
	}
	return &sc.Distribution{
		BucketCounts:    make([]int64, len(safe)+1),
		ExplicitBuckets: &sc.ExplicitBuckets{Bounds: safe},
	}, nil
}

// AddSample updates d's statistics and bucket counts to include x, using
// Welford's online recurrence for the running mean and sum of squared
// deviation.
func AddSample(x float64, d *sc.Distribution) error {
	switch {
	case d.ExponentialBuckets != nil:
		updateStatistics(x, d)
		return updateExponentialBucket(x, d)
	case d.LinearBuckets != nil:
		updateStatistics(x, d)
		return updateLinearBucket(x, d)
	case d.ExplicitBuckets != nil:
		updateStatistics(x, d)
		return updateExplicitBucket(x, d)
	default:
		return errors.New("distribution: unknown bucket option type")
	}
}

// Merge folds prior into latest in place, combining statistics and bucket
// counts. It returns an error if the two distributions' bucket options
// don't match (within a small float tolerance) or their bucket_counts
// lengths differ. If prior.Count == 0, latest is left unchanged.
func Merge(prior, latest *sc.Distribution) error {
	if !bucketsNearlyEqual(prior, latest) {
		return fmt.Errorf("distribution: bucket options do not match (%s vs %s)",
			bucketOptionName(prior), bucketOptionName(latest))
	}
	if len(prior.BucketCounts) != len(latest.BucketCounts) {
		return errors.New("distribution: bucket count sizes do not match")
	}
	if prior.Count <= 0 {
		return nil
	}

	oldCount := latest.Count
	oldMean := latest.Mean
	oldSSD := latest.SumOfSquaredDeviation

	latest.Count += prior.Count
	latest.Maximum = math.Max(prior.Maximum, latest.Maximum)
	latest.Minimum = math.Min(prior.Minimum, latest.Minimum)
	latest.Mean = (float64(oldCount)*oldMean + float64(prior.Count)*prior.Mean) / float64(latest.Count)
	latest.SumOfSquaredDeviation = oldSSD + prior.SumOfSquaredDeviation +
		float64(oldCount)*sq(latest.Mean-oldMean) +
		float64(prior.Count)*sq(latest.Mean-prior.Mean)

	for i := range prior.BucketCounts {
		latest.BucketCounts[i] += prior.BucketCounts[i]
	}
	return nil
}

func sq(x float64) float64 { return x * x }

func updateStatistics(x float64, d *sc.Distribution) {
	if d.Count == 0 {
		d.Count = 1
		d.Maximum = x
		d.Minimum = x
		d.Mean = x
		d.SumOfSquaredDeviation = 0
		return
	}
	oldCount := d.Count
	oldMean := d.Mean
	newMean := (float64(oldCount)*oldMean + x) / float64(oldCount+1)
	deltaSS := (x - oldMean) * (x - newMean)
	d.Count++
	d.Mean = newMean
	d.Maximum = math.Max(x, d.Maximum)
	d.Minimum = math.Min(x, d.Minimum)
	d.SumOfSquaredDeviation += deltaSS
}

func updateExponentialBucket(x float64, d *sc.Distribution) error {
	b := d.ExponentialBuckets
	n := int(b.NumFiniteBuckets)
	if len(d.BucketCounts) < n+2 {
		return errors.New("distribution: cannot update a distribution with a low bucket count")
	}
	var index int
	if x <= b.Scale {
		index = 0
	} else {
		index = 1 + int(math.Log(x/b.Scale)/math.Log(b.GrowthFactor))
		if index > n+1 {
			index = n + 1
		}
	}
	d.BucketCounts[index]++
	return nil
}

func updateLinearBucket(x float64, d *sc.Distribution) error {
	b := d.LinearBuckets
	n := int(b.NumFiniteBuckets)
	if len(d.BucketCounts) < n+2 {
		return errors.New("distribution: cannot update a distribution with a low bucket count")
	}
	lower := b.Offset
	upper := lower + float64(n)*b.Width
	var index int
	switch {
	case x < lower:
		index = 0
	case x >= upper:
		index = n + 1
	default:
		index = 1 + int((x-lower)/b.Width)
	}
	d.BucketCounts[index]++
	return nil
}

func updateExplicitBucket(x float64, d *sc.Distribution) error {
	bounds := d.ExplicitBuckets.Bounds
	if len(d.BucketCounts) < len(bounds)+1 {
		return errors.New("distribution: cannot update a distribution with a low bucket count")
	}
	d.BucketCounts[bisectRight(bounds, x)]++
	return nil
}

// bisectRight returns the index at which x would be inserted into sorted
// bounds to keep it sorted, placing a sample equal to a bound into the
// upper bucket (mirrors bisect.bisect from the reference implementation).
func bisectRight(bounds []float64, x float64) int {
	return sort.Search(len(bounds), func(i int) bool { return bounds[i] > x })
}

func closeEnough(x, y float64) bool {
	return math.Abs(x-y) <= epsilon*math.Abs(x)
}

func bucketsNearlyEqual(a, b *sc.Distribution) bool {
	switch {
	case a.LinearBuckets != nil && b.LinearBuckets != nil:
		la, lb := a.LinearBuckets, b.LinearBuckets
		return la.NumFiniteBuckets == lb.NumFiniteBuckets &&
			closeEnough(la.Width, lb.Width) && closeEnough(la.Offset, lb.Offset)
	case a.ExponentialBuckets != nil && b.ExponentialBuckets != nil:
		ea, eb := a.ExponentialBuckets, b.ExponentialBuckets
		return ea.NumFiniteBuckets == eb.NumFiniteBuckets &&
			closeEnough(ea.GrowthFactor, eb.GrowthFactor) && closeEnough(ea.Scale, eb.Scale)
	case a.ExplicitBuckets != nil && b.ExplicitBuckets != nil:
		ba, bb := a.ExplicitBuckets.Bounds, b.ExplicitBuckets.Bounds
		if len(ba) != len(bb) {
			return false
		}
		for i := range ba {
			if !closeEnough(ba[i], bb[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// bucketOptionName is used only for error messages.
func bucketOptionName(d *sc.Distribution) string {
	switch {
	case d.ExponentialBuckets != nil:
		return "exponential_buckets"
	case d.LinearBuckets != nil:
		return "linear_buckets"
	case d.ExplicitBuckets != nil:
		return "explicit_buckets"
	default:
		return fmt.Sprintf("%T", d)
	}
}
