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
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/capweight/capsim/data"
	"github.com/capweight/capsim/dataframe"
	"github.com/capweight/capsim/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrInvalidFee          = errors.New("annual fee must be in [0, 1)")
	ErrInvalidInitialValue = errors.New("initial value must be greater than zero")
	ErrNoReturnData        = errors.New("return panel has no dates")
)

// Measurement is the portfolio value on a single date under both fee
// regimes
type Measurement struct {
	Time         time.Time `json:"time"`
	Value        float64   `json:"value"`
	ValueWithFee float64   `json:"valueWithFee"`
}

// Simulation compounds a portfolio plan over a daily return panel. Two
// value series are tracked: one untouched and one charged AnnualFee on every
// fee date.
type Simulation struct {
	InitialValue float64
	AnnualFee    float64
}

// position is a held ticker resolved against the return panel. Positions
// are sorted by ticker so the daily sum is deterministic.
type position struct {
	ticker string
	weight float64
	colIdx int
}

// NewSimulation creates a simulation configured from the
// backtest.initial_value and backtest.annual_fee settings
func NewSimulation() (*Simulation, error) {
	initialValue := viper.GetFloat64("backtest.initial_value")
	if initialValue == 0 {
		initialValue = 10000
	}

	annualFee := 0.0049
	if viper.IsSet("backtest.annual_fee") {
		annualFee = viper.GetFloat64("backtest.annual_fee")
	}

	sim := &Simulation{
		InitialValue: initialValue,
		AnnualFee:    annualFee,
	}
	if err := sim.Validate(); err != nil {
		return nil, err
	}
	return sim, nil
}

// Validate checks the simulation parameters
func (sim *Simulation) Validate() error {
	if sim.InitialValue <= 0 {
		return ErrInvalidInitialValue
	}
	if sim.AnnualFee < 0 || sim.AnnualFee >= 1 {
		return ErrInvalidFee
	}
	return nil
}

// Run folds the portfolio plan over the return panel's date index. Both
// value series start at InitialValue on the first date; each later date
// applies any allocation dated that day, compounds the weighted daily
// return, and charges the annual fee on fee dates (with-fee series only,
// after compounding). Days where nothing is held carry the prior value
// forward. Cancelling the context aborts between dates.
func (sim *Simulation) Run(ctx context.Context, returns *dataframe.DataFrame, schedule *data.Schedule, plan data.PortfolioPlan) (*Performance, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "simulation.Run")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{
		Key:   "NumAllocations",
		Value: attribute.IntValue(len(plan)),
	})

	if err := sim.Validate(); err != nil {
		return nil, err
	}
	if returns == nil || returns.Len() == 0 {
		log.Error().Stack().Msg("cannot simulate over an empty return panel")
		return nil, ErrNoReturnData
	}

	allocByDate := make(map[int64]*data.Allocation, len(plan))
	for _, alloc := range plan {
		allocByDate[alloc.Date.Unix()] = alloc
	}

	measurements := make([]*Measurement, 0, returns.Len())
	measurements = append(measurements, &Measurement{
		Time:         returns.Dates[0],
		Value:        sim.InitialValue,
		ValueWithFee: sim.InitialValue,
	})

	var holdings []position
	for idx := 1; idx < len(returns.Dates); idx++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		dt := returns.Dates[idx]
		if alloc, ok := allocByDate[dt.Unix()]; ok {
			holdings = resolvePositions(alloc, returns)
		}

		prev := measurements[idx-1]
		value := prev.Value
		valueWithFee := prev.ValueWithFee

		if len(holdings) > 0 {
			var dailyReturn float64
			for _, pos := range holdings {
				if pos.colIdx == -1 {
					continue
				}
				r := returns.Vals[pos.colIdx][idx]
				if math.IsNaN(r) {
					continue
				}
				dailyReturn += pos.weight * r
			}

			value *= 1 + dailyReturn
			valueWithFee *= 1 + dailyReturn
		}

		if schedule.IsFeeDate(dt) {
			valueWithFee *= 1 - sim.AnnualFee
		}

		measurements = append(measurements, &Measurement{
			Time:         dt,
			Value:        value,
			ValueWithFee: valueWithFee,
		})
	}

	return &Performance{
		Measurements: measurements,
		PeriodStart:  returns.Dates[0],
		PeriodEnd:    returns.Dates[len(returns.Dates)-1],
		ComputedOn:   time.Now(),
	}, nil
}

// resolvePositions converts an allocation into positions with the return
// panel column pre-computed. Held tickers missing from the panel keep a -1
// column and contribute nothing.
func resolvePositions(alloc *data.Allocation, returns *dataframe.DataFrame) []position {
	positions := make([]position, 0, len(alloc.Members))
	for ticker, weight := range alloc.Members {
		positions = append(positions, position{
			ticker: ticker,
			weight: weight,
			colIdx: returns.ColIndex(ticker),
		})
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].ticker < positions[j].ticker
	})
	return positions
}
