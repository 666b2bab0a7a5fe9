// Copyright 2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataframe

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// DataFrameMap is a map of dataframes keyed by a grouping name (e.g. ticker)
type DataFrameMap map[string]*DataFrame

// Align reindexes every dataframe in the map onto the union of all date
// indexes. Dates a member has no observation for become NaN.
func (dfMap DataFrameMap) Align() DataFrameMap {
	dates := dfMap.unionDates()

	aligned := make(DataFrameMap, len(dfMap))
	for key, df := range dfMap {
		aligned[key] = df.Reindex(dates)
	}
	return aligned
}

// DataFrame merges the map into a single dataframe with one column group per
// member, ordered by member name for deterministic output. All members must
// share an identical date index; call Align first when they may not.
func (dfMap DataFrameMap) DataFrame() *DataFrame {
	df := &DataFrame{
		Dates:    []time.Time{},
		ColNames: []string{},
		Vals:     [][]float64{},
	}

	keys := make([]string, 0, len(dfMap))
	for key := range dfMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	first := true
	for _, key := range keys {
		member := dfMap[key]
		if first {
			df.Dates = member.Dates
			first = false
		} else if !datesEqual(df.Dates, member.Dates) {
			log.Panic().Str("Member", key).Msg("cannot merge dataframes with misaligned date indexes")
		}
		df.ColNames = append(df.ColNames, member.ColNames...)
		df.Vals = append(df.Vals, member.Vals...)
	}

	return df
}

func (dfMap DataFrameMap) unionDates() []time.Time {
	seen := make(map[int64]time.Time)
	for _, df := range dfMap {
		for _, dt := range df.Dates {
			seen[dt.Unix()] = dt
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for _, dt := range seen {
		dates = append(dates, dt)
	}
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})
	return dates
}

func datesEqual(a, b []time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for idx := range a {
		if !a[idx].Equal(b[idx]) {
			return false
		}
	}
	return true
}
