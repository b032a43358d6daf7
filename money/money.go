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

// Package money implements the monetary-arithmetic error kind named in the
// operation merge algebra's error handling design (OverflowError).
//
// The current servicecontrol wire schema no longer carries a money-valued
// MetricValue variant, so nothing in the merge dispatch (see package
// metricvalue) calls into this package today. It is kept standalone so the
// arithmetic it was built around stays available if that variant returns.
package money

import "errors"

const (
	billion   = 1000000000
	maxNanos  = billion - 1
	int64Max  = int64(^uint64(0) >> 1)
	int64Min  = -int64Max - 1
)

// ErrOverflow is returned by Add when a sum overflows int64 range and
// allowOverflow is false.
var ErrOverflow = errors.New("money: addition overflowed")

// Money represents an amount of money with its currency type, mirroring the
// units/nanos/currency_code shape of google.type.Money.
type Money struct {
	CurrencyCode string
	Units        int64
	Nanos        int32
}

// CheckValid reports whether m is a well-formed Money value.
func CheckValid(m Money) error {
	if len(m.CurrencyCode) != 3 {
		return errors.New("money: currency code is not 3 letters long")
	}
	if (m.Units > 0 && m.Nanos < 0) || (m.Units < 0 && m.Nanos > 0) {
		return errors.New("money: the signs of units and nanos do not match")
	}
	if abs32(m.Nanos) > maxNanos {
		return errors.New("money: nanos field must be between -999999999 and 999999999")
	}
	return nil
}

// Add sums a and b, which must share a currency code. If the sum overflows
// int64 range, Add returns ErrOverflow unless allowOverflow is true, in
// which case the result saturates at the int64 boundary.
func Add(a, b Money, allowOverflow bool) (Money, error) {
	if a.CurrencyCode != b.CurrencyCode {
		return Money{}, errors.New("money: values need the same currency to be summed")
	}
	carry, nanosSum := sumNanos(a.Nanos, b.Nanos)
	unitsSumNoCarry := a.Units + b.Units
	unitsSum := unitsSumNoCarry + carry

	if unitsSum > 0 && nanosSum < 0 {
		unitsSum--
		nanosSum += billion
	} else if unitsSum < 0 && nanosSum > 0 {
		unitsSum++
		nanosSum -= billion
	}

	signA, signB := signOf(a), signOf(b)
	switch {
	case signA > 0 && signB > 0 && (unitsSumNoCarry < 0 || unitsSum < 0 || unitsSum >= int64Max):
		if !allowOverflow {
			return Money{}, ErrOverflow
		}
		return Money{CurrencyCode: a.CurrencyCode, Units: int64Max, Nanos: maxNanos}, nil
	case signA < 0 && signB < 0 && (unitsSumNoCarry > 0 || unitsSum > 0 || unitsSumNoCarry <= -int64Max || unitsSum <= -int64Max):
		if !allowOverflow {
			return Money{}, ErrOverflow
		}
		return Money{CurrencyCode: a.CurrencyCode, Units: int64Min, Nanos: -maxNanos}, nil
	default:
		return Money{CurrencyCode: a.CurrencyCode, Units: unitsSum, Nanos: nanosSum}, nil
	}
}

func sumNanos(a, b int32) (carry int64, sum int32) {
	s := a + b
	switch {
	case s >= billion:
		return 1, s - billion
	case s <= -billion:
		return -1, s + billion
	default:
		return 0, s
	}
}

func signOf(m Money) int {
	switch {
	case m.Units > 0:
		return 1
	case m.Units < 0:
		return -1
	case m.Nanos > 0:
		return 1
	case m.Nanos < 0:
		return -1
	default:
		return 0
	}
}

func abs32(n int32) int32 {
	if n < 0 {
		return -n
	}
	return n
}
