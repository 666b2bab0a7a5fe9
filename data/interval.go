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

// Interval stores a beginning and ending time period
type Interval struct {
	Begin time.Time
	End   time.Time
}

// Adjacent checks if other touches the beginning or ending of the interval
// (daily resolution). Adjacency implies the two intervals DO NOT overlap.
func (interval *Interval) Adjacent(other *Interval) bool {
	return interval.AdjacentLeft(other) || interval.AdjacentRight(other)
}

// AdjacentLeft checks if other ends the day before the interval begins
func (interval *Interval) AdjacentLeft(other *Interval) bool {
	otherEnd := other.End.AddDate(0, 0, 1)
	return otherEnd.Equal(interval.Begin)
}

// AdjacentRight checks if other begins the day after the interval ends
func (interval *Interval) AdjacentRight(other *Interval) bool {
	otherBegin := other.Begin.AddDate(0, 0, -1)
	return otherBegin.Equal(interval.End)
}

// Contains returns true if interval completely contains other
func (interval *Interval) Contains(other *Interval) bool {
	if (other.Begin.After(interval.Begin) || other.Begin.Equal(interval.Begin)) && (other.End.Before(interval.End) || other.End.Equal(interval.End)) {
		return true
	}
	return false
}

// Contiguous returns true if the other interval shares a common border with
// this interval, either by adjacency or partial overlap. Contiguous implies
// that neither interval is a subset of the other.
func (interval *Interval) Contiguous(other *Interval) bool {
	if interval.Adjacent(other) {
		return true
	}

	if interval.Contains(other) || other.Contains(interval) {
		return false
	}

	if interval.Overlaps(other) {
		return true
	}

	return false
}

// Overlaps returns true if interval and other overlap
func (interval *Interval) Overlaps(other *Interval) bool {
	if (other.Begin.Before(interval.End) || other.Begin.Equal(interval.End)) && (other.End.After(interval.Begin) || other.End.Equal(interval.Begin)) {
		return true
	}
	return false
}

// Valid checks if the given interval is a valid range and returns an error if not
func (interval *Interval) Valid() error {
	if interval.Begin.After(interval.End) {
		return ErrBeginAfterEnd
	}

	return nil
}

// MarshalZerologObject implement the log marshaller interface for zerolog
func (interval *Interval) MarshalZerologObject(e *zerolog.Event) {
	e.Time("Begin", interval.Begin).Time("End", interval.End)
}
