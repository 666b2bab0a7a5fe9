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
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

// AddScalar adds the scalar value to all elements in the dataframe and
// returns a new dataframe
func (df *DataFrame) AddScalar(scalar float64) *DataFrame {
	df2 := df.Copy()
	for idx := range df2.Vals {
		floats.AddConst(scalar, df2.Vals[idx])
	}
	return df2
}

// MulScalar multiplies all elements in the dataframe by the scalar value
// and returns a new dataframe
func (df *DataFrame) MulScalar(scalar float64) *DataFrame {
	df2 := df.Copy()
	for idx := range df2.Vals {
		floats.Scale(scalar, df2.Vals[idx])
	}
	return df2
}

// Mul multiplies the dataframe by other, matching columns by name. Columns
// of df without a match in other are left untouched. Date indexes must be
// equal in length.
func (df *DataFrame) Mul(other *DataFrame) *DataFrame {
	df2 := df.Copy()

	otherMap := make(map[string]int, len(other.ColNames))
	for idx, col := range other.ColNames {
		otherMap[col] = idx
	}

	for idx, col := range df2.ColNames {
		otherIdx, ok := otherMap[col]
		if !ok {
			continue
		}
		if len(df2.Vals[idx]) != len(other.Vals[otherIdx]) {
			log.Panic().Str("ColName", col).Int("LenA", len(df2.Vals[idx])).Int("LenB", len(other.Vals[otherIdx])).Msg("cannot multiply columns of different lengths")
		}
		floats.Mul(df2.Vals[idx], other.Vals[otherIdx])
	}

	return df2
}

// PctChange computes the period-over-period percentage change of every
// column. The first row has no prior period and is NaN; rows whose current
// or prior value is missing are NaN.
func (df *DataFrame) PctChange() *DataFrame {
	df2 := df.Copy()
	for colIdx := range df2.Vals {
		vals := df2.Vals[colIdx]
		prev := math.NaN()
		for rowIdx, val := range df.Vals[colIdx] {
			vals[rowIdx] = val/prev - 1.0
			prev = val
		}
	}
	return df2
}

// FillNA replaces every NaN element with the given value and returns a new
// dataframe
func (df *DataFrame) FillNA(value float64) *DataFrame {
	df2 := df.Copy()
	for colIdx := range df2.Vals {
		for rowIdx, val := range df2.Vals[colIdx] {
			if math.IsNaN(val) {
				df2.Vals[colIdx][rowIdx] = value
			}
		}
	}
	return df2
}

// ForwardFill replaces NaN elements with the most recent prior observation
// in the same column. Leading NaN values are left in place.
func (df *DataFrame) ForwardFill() *DataFrame {
	df2 := df.Copy()
	for colIdx := range df2.Vals {
		last := math.NaN()
		for rowIdx, val := range df2.Vals[colIdx] {
			if math.IsNaN(val) {
				df2.Vals[colIdx][rowIdx] = last
			} else {
				last = val
			}
		}
	}
	return df2
}

// BackwardFill replaces NaN elements with the next later observation in the
// same column. Trailing NaN values are left in place.
func (df *DataFrame) BackwardFill() *DataFrame {
	df2 := df.Copy()
	for colIdx := range df2.Vals {
		next := math.NaN()
		for rowIdx := len(df2.Vals[colIdx]) - 1; rowIdx >= 0; rowIdx-- {
			val := df2.Vals[colIdx][rowIdx]
			if math.IsNaN(val) {
				df2.Vals[colIdx][rowIdx] = next
			} else {
				next = val
			}
		}
	}
	return df2
}

// HasData returns true when at least one element of the dataframe is a real
// observation (not NaN)
func (df *DataFrame) HasData() bool {
	for colIdx := range df.Vals {
		for _, val := range df.Vals[colIdx] {
			if !math.IsNaN(val) {
				return true
			}
		}
	}
	return false
}
