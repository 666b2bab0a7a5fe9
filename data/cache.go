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
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/capweight/capsim/common"
	"github.com/capweight/capsim/dataframe"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
)

type cacheEntry struct {
	df     *dataframe.DataFrame
	period *Interval
}

// MetricCache stores assembled metric panels keyed by the hash of the
// requested ticker set and metric. Each entry records the interval it
// covers; a hit requires the cached interval to contain the request.
type MetricCache struct {
	entries *lru.Cache
	locker  sync.RWMutex
}

// NewMetricCache creates a cache bounded to size panels
func NewMetricCache(size int) *MetricCache {
	entries, err := lru.New(size)
	if err != nil {
		log.Panic().Err(err).Int("CacheSize", size).Msg("could not create metric cache")
	}
	return &MetricCache{
		entries: entries,
	}
}

// CacheKey computes a stable hash for the ticker set and metric. Ticker
// order does not affect the key.
func CacheKey(tickers []string, metric Metric) string {
	sorted := make([]string, len(tickers))
	copy(sorted, tickers)
	sort.Strings(sorted)

	h := blake3.New()
	_, _ = h.Write([]byte(strings.Join(sorted, ":")))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(metric))
	return hex.EncodeToString(h.Sum(nil))
}

// Check returns true when the cache covers [begin, end] for the ticker set
// and metric
func (cache *MetricCache) Check(tickers []string, metric Metric, begin, end time.Time) bool {
	cache.locker.RLock()
	defer cache.locker.RUnlock()

	requested := &Interval{Begin: begin, End: end}
	if err := requested.Valid(); err != nil {
		log.Error().Err(err).Msg("cannot check cache with invalid interval")
		return false
	}

	if val, ok := cache.entries.Get(CacheKey(tickers, metric)); ok {
		entry := val.(*cacheEntry)
		return entry.period.Contains(requested)
	}
	return false
}

// Get returns a copy of the cached panel trimmed to [begin, end]. When the
// cached interval does not cover the request, ErrRangeDoesNotExist is
// returned.
func (cache *MetricCache) Get(tickers []string, metric Metric, begin, end time.Time) (*dataframe.DataFrame, error) {
	cache.locker.RLock()
	defer cache.locker.RUnlock()

	requested := &Interval{Begin: begin, End: end}
	if err := requested.Valid(); err != nil {
		return nil, err
	}

	val, ok := cache.entries.Get(CacheKey(tickers, metric))
	if !ok {
		return nil, ErrRangeDoesNotExist
	}

	entry := val.(*cacheEntry)
	if !entry.period.Contains(requested) {
		return nil, ErrRangeDoesNotExist
	}

	return entry.df.Copy().Trim(begin, end), nil
}

// Set stores the panel as covering [begin, end]. When an entry already
// exists and the periods touch, the cached panel is extended rather than
// replaced; disjoint periods replace the old entry.
func (cache *MetricCache) Set(tickers []string, metric Metric, begin, end time.Time, df *dataframe.DataFrame) error {
	cache.locker.Lock()
	defer cache.locker.Unlock()

	period := &Interval{Begin: begin, End: end}
	if err := period.Valid(); err != nil {
		log.Error().Err(err).Msg("cannot set cache value with invalid interval")
		return err
	}

	k := CacheKey(tickers, metric)
	store := df.Copy()

	if val, ok := cache.entries.Get(k); ok {
		entry := val.(*cacheEntry)
		if entry.period.Contains(period) {
			return nil
		}
		if entry.period.Overlaps(period) || entry.period.Contiguous(period) {
			store = mergePanels(entry.df, store)
			period = &Interval{
				Begin: common.MinTime(entry.period.Begin, period.Begin),
				End:   common.MaxTime(entry.period.End, period.End),
			}
		}
	}

	cache.entries.Add(k, &cacheEntry{df: store, period: period})
	return nil
}

// Purge drops every cached panel
func (cache *MetricCache) Purge() {
	cache.locker.Lock()
	defer cache.locker.Unlock()
	cache.entries.Purge()
}

// mergePanels combines two panels over the union of their date indexes and
// columns, preferring values from next where both have an observation
func mergePanels(prev, next *dataframe.DataFrame) *dataframe.DataFrame {
	dfMap := dataframe.DataFrameMap{"prev": prev, "next": next}
	aligned := dfMap.Align()
	prevAligned := aligned["prev"]
	nextAligned := aligned["next"]

	colNames := make([]string, len(nextAligned.ColNames))
	copy(colNames, nextAligned.ColNames)
	merged := &dataframe.DataFrame{
		Dates:    nextAligned.Dates,
		ColNames: colNames,
		Vals:     make([][]float64, len(nextAligned.Vals)),
	}

	for colIdx, col := range merged.ColNames {
		vals := make([]float64, len(merged.Dates))
		copy(vals, nextAligned.Vals[colIdx])
		if prevIdx := prevAligned.ColIndex(col); prevIdx != -1 {
			for rowIdx, v := range vals {
				if math.IsNaN(v) {
					vals[rowIdx] = prevAligned.Vals[prevIdx][rowIdx]
				}
			}
		}
		merged.Vals[colIdx] = vals
	}

	for colIdx, col := range prevAligned.ColNames {
		if merged.ColIndex(col) == -1 {
			merged.ColNames = append(merged.ColNames, col)
			vals := make([]float64, len(prevAligned.Vals[colIdx]))
			copy(vals, prevAligned.Vals[colIdx])
			merged.Vals = append(merged.Vals, vals)
		}
	}

	return merged
}
