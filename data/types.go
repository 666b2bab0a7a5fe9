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

package data

import (
	"time"

	"github.com/rs/zerolog"
)

// Metric names an end-of-day observation type stored per security
type Metric string

const (
	MetricClose     Metric = "close"
	MetricShares    Metric = "shares_outstanding"
	MetricMarketCap Metric = "market_cap"
)

// Security is a tradeable asset identified by its ticker. The ticker is the
// column key used in metric panels.
type Security struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// Allocation is a dated set of portfolio weights produced by a rebalance.
// Members maps ticker to weight in (0, 1]; weights sum to 1.0 at assignment.
// MarketCaps records the market capitalization each weight was derived from.
type Allocation struct {
	Date       time.Time          `json:"date"`
	Members    map[string]float64 `json:"members"`
	MarketCaps map[string]float64 `json:"marketCaps"`
}

// PortfolioPlan is a list of allocations sorted ascending by date; at most
// one allocation per rebalance date. Rebalances skipped for lack of data
// have no entry.
type PortfolioPlan []*Allocation

// MarshalZerologObject implement the log marshaller interface for zerolog
func (alloc *Allocation) MarshalZerologObject(e *zerolog.Event) {
	e.Time("Date", alloc.Date).Int("NumMembers", len(alloc.Members))
}
