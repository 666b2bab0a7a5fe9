// Copyright 2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package portfolio

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

const (
	NOFEE   = "NOFEE"
	WITHFEE = "WITHFEE"
)

// TradingDaysPerYear is the annualization convention used by Cagr and
// StdDev
const TradingDaysPerYear = 252

// Performance is the result of a simulation run: the value series plus the
// period it covers
type Performance struct {
	Measurements []*Measurement `json:"measurements"`
	PeriodStart  time.Time      `json:"periodStart"`
	PeriodEnd    time.Time      `json:"periodEnd"`
	ComputedOn   time.Time      `json:"computedOn"`
}

// values extracts the requested series. Unknown kinds return nil.
func (perf *Performance) values(kind string) []float64 {
	vals := make([]float64, len(perf.Measurements))
	switch kind {
	case NOFEE:
		for idx, m := range perf.Measurements {
			vals[idx] = m.Value
		}
	case WITHFEE:
		for idx, m := range perf.Measurements {
			vals[idx] = m.ValueWithFee
		}
	default:
		log.Error().Str("Kind", kind).Msg("unknown performance series kind")
		return nil
	}
	return vals
}

// TotalReturn is final value over initial value minus one
func (perf *Performance) TotalReturn(kind string) float64 {
	vals := perf.values(kind)
	if len(vals) == 0 {
		return math.NaN()
	}
	return vals[len(vals)-1]/vals[0] - 1
}

// Cagr annualizes the total return over the series' observation count using
// a 252 trading-day year. A series with no observations past the starting
// point has no defined growth rate and returns NaN.
func (perf *Performance) Cagr(kind string) float64 {
	vals := perf.values(kind)
	n := len(vals) - 1
	if n <= 0 {
		return math.NaN()
	}
	totalReturn := vals[len(vals)-1]/vals[0] - 1
	return math.Pow(1+totalReturn, float64(TradingDaysPerYear)/float64(n)) - 1
}

// FinalBalance is the last value of the series
func (perf *Performance) FinalBalance(kind string) float64 {
	vals := perf.values(kind)
	if len(vals) == 0 {
		return math.NaN()
	}
	return vals[len(vals)-1]
}

// DailyReturns is the day-over-day percentage change of the series; the
// first entry is 0 to keep it parallel with Measurements
func (perf *Performance) DailyReturns(kind string) []float64 {
	vals := perf.values(kind)
	if len(vals) == 0 {
		return []float64{}
	}
	returns := make([]float64, len(vals))
	for idx := 1; idx < len(vals); idx++ {
		returns[idx] = vals[idx]/vals[idx-1] - 1
	}
	return returns
}

// StdDev is the annualized standard deviation of the series' daily returns
func (perf *Performance) StdDev(kind string) float64 {
	returns := perf.DailyReturns(kind)
	if len(returns) < 3 {
		return math.NaN()
	}
	return stat.StdDev(returns[1:], nil) * math.Sqrt(TradingDaysPerYear)
}

// MaxDrawDown is the deepest peak-to-trough decline of the series,
// expressed as a negative fraction
func (perf *Performance) MaxDrawDown(kind string) float64 {
	vals := perf.values(kind)
	if len(vals) == 0 {
		return math.NaN()
	}

	peak := vals[0]
	maxDrawDown := 0.0
	for _, v := range vals {
		if v > peak {
			peak = v
		}
		drawDown := v/peak - 1
		if drawDown < maxDrawDown {
			maxDrawDown = drawDown
		}
	}
	return maxDrawDown
}
