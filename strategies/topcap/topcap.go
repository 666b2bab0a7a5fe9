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

/*
 * Market Cap Weighted Top N
 *
 * Holds the N largest securities in the universe by market capitalization,
 * each weighted by its share of the group's combined market cap. The
 * portfolio rebalances on the last trading day of every quarter. This is how
 * most broad market indexes (S&P 500, Russell 1000) weight their members.
 */

package topcap

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/capweight/capsim/common"
	"github.com/capweight/capsim/data"
	"github.com/capweight/capsim/dataframe"
	"github.com/capweight/capsim/observability/opentelemetry"
	"github.com/capweight/capsim/strategies/strategy"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrInvalidNumHoldings = errors.New("numHoldings must be greater than zero")
)

// DefaultNumHoldings is the portfolio size used when the numHoldings
// argument is not given
const DefaultNumHoldings = 50

// TopCap holds the N largest securities weighted by market cap
type TopCap struct {
	numHoldings int
}

// New constructs a new top-cap strategy from its arguments
func New(args map[string]json.RawMessage) (strategy.Strategy, error) {
	numHoldings := DefaultNumHoldings
	if raw, ok := args["numHoldings"]; ok {
		if err := json.Unmarshal(raw, &numHoldings); err != nil {
			log.Error().Err(err).Msg("could not parse numHoldings argument")
			return nil, err
		}
	}

	if numHoldings <= 0 {
		return nil, ErrInvalidNumHoldings
	}

	return &TopCap{
		numHoldings: numHoldings,
	}, nil
}

// Compute builds one allocation per rebalance date from the market cap
// panel. A rebalance date where fewer than numHoldings securities report a
// market cap produces no allocation, leaving the previous holdings in
// effect.
func (tc *TopCap) Compute(ctx context.Context, marketCap *dataframe.DataFrame, schedule *data.Schedule) (data.PortfolioPlan, error) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "topcap.Compute")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{
		Key:   "NumHoldings",
		Value: attribute.IntValue(tc.numHoldings),
	})

	plan := make(data.PortfolioPlan, 0, 64)
	for rowIdx, dt := range marketCap.Dates {
		if !schedule.IsRebalanceDate(dt) {
			continue
		}

		ranked := make(common.PairList, 0, len(marketCap.ColNames))
		for colIdx, ticker := range marketCap.ColNames {
			val := marketCap.Vals[colIdx][rowIdx]
			if math.IsNaN(val) {
				continue
			}
			ranked = append(ranked, common.Pair{Key: ticker, Value: val})
		}

		if len(ranked) < tc.numHoldings {
			log.Debug().Time("Date", dt).Int("NumAvailable", len(ranked)).Int("NumHoldings", tc.numHoldings).Msg("not enough securities report a market cap; keeping previous holdings")
			continue
		}

		// ties keep column order
		sort.Stable(sort.Reverse(ranked))
		selected := ranked[:tc.numHoldings]

		var totalCap float64
		for _, pair := range selected {
			totalCap += pair.Value
		}
		if totalCap <= 0 {
			log.Warn().Time("Date", dt).Msg("selected securities have no combined market cap; keeping previous holdings")
			continue
		}

		alloc := &data.Allocation{
			Date:       dt,
			Members:    make(map[string]float64, len(selected)),
			MarketCaps: make(map[string]float64, len(selected)),
		}
		for _, pair := range selected {
			alloc.Members[pair.Key] = pair.Value / totalCap
			alloc.MarketCaps[pair.Key] = pair.Value
		}

		plan = append(plan, alloc)
	}

	span.SetAttributes(attribute.KeyValue{
		Key:   "NumAllocations",
		Value: attribute.IntValue(len(plan)),
	})
	return plan, nil
}
