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
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
)

var ErrDateIndexNotAligned = errors.New("date indexes do not align")

// DataFrame stores a date-indexed table of float64 values. Each column is a
// parallel array to Dates. math.NaN() marks missing observations.
type DataFrame struct {
	Dates    []time.Time
	ColNames []string
	Vals     [][]float64
}

// Len returns the number of rows in the dataframe
func (df *DataFrame) Len() int {
	return len(df.Dates)
}

// ColCount returns the number of columns in the dataframe
func (df *DataFrame) ColCount() int {
	return len(df.ColNames)
}

// ColIndex returns the index of the column with the given name, or -1 when
// no such column exists
func (df *DataFrame) ColIndex(name string) int {
	for idx, col := range df.ColNames {
		if col == name {
			return idx
		}
	}
	return -1
}

// Start returns the first date of the dataframe; the zero time when empty
func (df *DataFrame) Start() time.Time {
	if len(df.Dates) == 0 {
		return time.Time{}
	}
	return df.Dates[0]
}

// End returns the last date of the dataframe; the zero time when empty
func (df *DataFrame) End() time.Time {
	if len(df.Dates) == 0 {
		return time.Time{}
	}
	return df.Dates[len(df.Dates)-1]
}

// Copy returns a deep copy of the dataframe
func (df *DataFrame) Copy() *DataFrame {
	df2 := &DataFrame{
		Dates:    make([]time.Time, len(df.Dates)),
		ColNames: make([]string, len(df.ColNames)),
		Vals:     make([][]float64, len(df.Vals)),
	}

	copy(df2.Dates, df.Dates)
	copy(df2.ColNames, df.ColNames)
	for idx := range df.Vals {
		df2.Vals[idx] = make([]float64, len(df.Vals[idx]))
		copy(df2.Vals[idx], df.Vals[idx])
	}

	return df2
}

// InsertRow appends a row to the end of the dataframe. The date must be
// after the current last date; out-of-order inserts panic.
func (df *DataFrame) InsertRow(date time.Time, vals ...float64) *DataFrame {
	if len(vals) != len(df.ColNames) {
		log.Panic().Time("Date", date).Int("NumVals", len(vals)).Int("NumCols", len(df.ColNames)).Msg("insert row failed: value count does not match column count")
	}
	if len(df.Dates) > 0 && !df.Dates[len(df.Dates)-1].Before(date) {
		log.Panic().Time("Date", date).Time("LastDate", df.Dates[len(df.Dates)-1]).Msg("insert row failed: rows must be added in ascending date order")
	}

	df.Dates = append(df.Dates, date)
	for idx, val := range vals {
		df.Vals[idx] = append(df.Vals[idx], val)
	}
	return df
}

// Trim the dataframe to the specified date range (inclusive)
func (df *DataFrame) Trim(begin, end time.Time) *DataFrame {
	// special case 0: requested range is invalid
	if end.Before(begin) {
		df.Dates = []time.Time{}
		for idx := range df.Vals {
			df.Vals[idx] = []float64{}
		}
		return df
	}

	// special case 1: data frame is empty
	if len(df.Dates) == 0 {
		return df
	}

	// special case 2: end is before the start of the dataframe
	if end.Before(df.Dates[0]) {
		df.Dates = []time.Time{}
		for idx := range df.Vals {
			df.Vals[idx] = []float64{}
		}
		return df
	}

	// special case 3: begin is after the end of the dataframe
	if begin.After(df.Dates[len(df.Dates)-1]) {
		df.Dates = []time.Time{}
		for idx := range df.Vals {
			df.Vals[idx] = []float64{}
		}
		return df
	}

	beginIdx := sort.Search(len(df.Dates), func(i int) bool {
		return !df.Dates[i].Before(begin)
	})
	endIdx := sort.Search(len(df.Dates), func(i int) bool {
		return df.Dates[i].After(end)
	})

	df.Dates = df.Dates[beginIdx:endIdx]
	for idx := range df.Vals {
		df.Vals[idx] = df.Vals[idx][beginIdx:endIdx]
	}
	return df
}

// Reindex projects the dataframe onto a new date index. Dates present in
// the new index but absent from the dataframe are filled with NaN; dates
// absent from the new index are dropped. Both indexes must be ascending.
func (df *DataFrame) Reindex(dates []time.Time) *DataFrame {
	df2 := &DataFrame{
		Dates:    make([]time.Time, len(dates)),
		ColNames: make([]string, len(df.ColNames)),
		Vals:     make([][]float64, len(df.Vals)),
	}
	copy(df2.Dates, dates)
	copy(df2.ColNames, df.ColNames)

	for colIdx := range df.Vals {
		vals := make([]float64, len(dates))
		srcIdx := 0
		for rowIdx, dt := range dates {
			for srcIdx < len(df.Dates) && df.Dates[srcIdx].Before(dt) {
				srcIdx++
			}
			if srcIdx < len(df.Dates) && df.Dates[srcIdx].Equal(dt) {
				vals[rowIdx] = df.Vals[colIdx][srcIdx]
			} else {
				vals[rowIdx] = math.NaN()
			}
		}
		df2.Vals[colIdx] = vals
	}

	return df2
}

// Table builds a string representation of the dataframe suitable for
// printing to the console
func (df *DataFrame) Table() string {
	if len(df.ColNames) == 0 {
		return ""
	}

	s := &strings.Builder{}

	table := tablewriter.NewWriter(s)
	table.SetHeader(append([]string{"Date"}, df.ColNames...))
	table.SetBorder(false)

	for rowIdx := range df.Dates {
		row := make([]string, 0, len(df.ColNames)+1)
		row = append(row, df.Dates[rowIdx].Format("2006-01-02"))
		for colIdx := range df.Vals {
			row = append(row, fmt.Sprintf("%.4f", df.Vals[colIdx][rowIdx]))
		}
		table.Append(row)
	}

	footer := make([]string, len(df.ColNames)+1)
	footer[0] = fmt.Sprintf("Num Rows: %d", df.Len())
	table.SetFooter(footer)
	table.Render()

	return s.String()
}
