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
	"sort"
	"time"
)

// Schedule identifies the rebalance and fee dates within a trading-day
// index. A rebalance date is the last index date of each calendar quarter;
// a fee date is the last index date of each calendar year. Both sets are
// subsets of the index the schedule was built from.
type Schedule struct {
	rebalance map[int64]time.Time
	fee       map[int64]time.Time
}

// BuildSchedule derives the rebalance and fee dates from a trading-day
// index. The index must be sorted ascending; an index that covers a single
// quarter yields exactly one rebalance date (its last entry). BuildSchedule
// is a pure function of the index.
func BuildSchedule(dates []time.Time) *Schedule {
	schedule := &Schedule{
		rebalance: make(map[int64]time.Time),
		fee:       make(map[int64]time.Time),
	}

	quarterEnd := make(map[int]time.Time, len(dates)/60+1)
	yearEnd := make(map[int]time.Time, len(dates)/250+1)

	for _, dt := range dates {
		quarter := (int(dt.Month())-1)/3 + 1
		quarterEnd[dt.Year()*10+quarter] = dt
		yearEnd[dt.Year()] = dt
	}

	for _, dt := range quarterEnd {
		schedule.rebalance[dt.Unix()] = dt
	}
	for _, dt := range yearEnd {
		schedule.fee[dt.Unix()] = dt
	}

	return schedule
}

// IsRebalanceDate returns true when t is the last trading day of a quarter
func (schedule *Schedule) IsRebalanceDate(t time.Time) bool {
	_, ok := schedule.rebalance[t.Unix()]
	return ok
}

// IsFeeDate returns true when t is the last trading day of a year
func (schedule *Schedule) IsFeeDate(t time.Time) bool {
	_, ok := schedule.fee[t.Unix()]
	return ok
}

// RebalanceDates returns the rebalance dates in ascending order
func (schedule *Schedule) RebalanceDates() []time.Time {
	return sortedDates(schedule.rebalance)
}

// FeeDates returns the fee dates in ascending order
func (schedule *Schedule) FeeDates() []time.Time {
	return sortedDates(schedule.fee)
}

func sortedDates(m map[int64]time.Time) []time.Time {
	dates := make([]time.Time, 0, len(m))
	for _, dt := range m {
		dates = append(dates, dt)
	}
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})
	return dates
}
