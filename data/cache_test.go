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

package data_test

import (
	"errors"
	"sort"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gmeasure"

	"github.com/capweight/capsim/common"
	"github.com/capweight/capsim/data"
	"github.com/capweight/capsim/dataframe"
)

func tz() *time.Location {
	return common.GetTimezone()
}

// panelFrame builds a panel over days of August 2022 with one column per
// map entry, ordered alphabetically like assembled panels are
func panelFrame(days []int, cols map[string][]float64) *dataframe.DataFrame {
	dates := make([]time.Time, len(days))
	for idx, dom := range days {
		dates[idx] = time.Date(2022, 8, dom, 0, 0, 0, 0, tz())
	}

	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	vals := make([][]float64, len(names))
	for idx, name := range names {
		vals[idx] = cols[name]
	}

	return &dataframe.DataFrame{
		Dates:    dates,
		ColNames: names,
		Vals:     vals,
	}
}

var _ = Describe("MetricCache", func() {
	var (
		cache   *data.MetricCache
		tickers []string
		begin   time.Time
		end     time.Time
	)

	BeforeEach(func() {
		cache = data.NewMetricCache(16)
		tickers = []string{"AAPL", "MSFT"}
		begin = time.Date(2022, 8, 1, 0, 0, 0, 0, tz())
		end = time.Date(2022, 8, 9, 0, 0, 0, 0, tz())
	})

	Context("with a single stored panel", func() {
		BeforeEach(func() {
			panel := panelFrame([]int{1, 2, 3, 4, 5, 8, 9}, map[string][]float64{
				"AAPL": {10, 11, 12, 13, 14, 15, 16},
				"MSFT": {20, 21, 22, 23, 24, 25, 26},
			})
			err := cache.Set(tickers, data.MetricMarketCap, begin, end, panel)
			Expect(err).To(BeNil())
		})

		It("benchmarks performance", func() {
			experiment := gmeasure.NewExperiment("metric cache")
			AddReportEntry(experiment.Name, experiment)

			experiment.SampleDuration("get covered range", func(_ int) {
				_, err := cache.Get(tickers, data.MetricMarketCap, begin, end)
				Expect(err).To(BeNil())
			}, gmeasure.SamplingConfig{N: 1000})
		})

		It("reports coverage for contained ranges", func() {
			Expect(cache.Check(tickers, data.MetricMarketCap, begin, end)).To(BeTrue())
			Expect(cache.Check(tickers, data.MetricMarketCap,
				time.Date(2022, 8, 3, 0, 0, 0, 0, tz()),
				time.Date(2022, 8, 8, 0, 0, 0, 0, tz()))).To(BeTrue())
		})

		It("returns the stored panel trimmed to the request", func() {
			df, err := cache.Get(tickers, data.MetricMarketCap,
				time.Date(2022, 8, 3, 0, 0, 0, 0, tz()),
				time.Date(2022, 8, 8, 0, 0, 0, 0, tz()))
			Expect(err).To(BeNil())
			Expect(df.ColNames).To(Equal([]string{"AAPL", "MSFT"}))
			Expect(df.Dates).To(Equal([]time.Time{
				time.Date(2022, 8, 3, 0, 0, 0, 0, tz()),
				time.Date(2022, 8, 4, 0, 0, 0, 0, tz()),
				time.Date(2022, 8, 5, 0, 0, 0, 0, tz()),
				time.Date(2022, 8, 8, 0, 0, 0, 0, tz()),
			}))
			Expect(df.Vals[0]).To(Equal([]float64{12, 13, 14, 15}))
			Expect(df.Vals[1]).To(Equal([]float64{22, 23, 24, 25}))
		})

		It("misses when the request extends past the covered interval", func() {
			Expect(cache.Check(tickers, data.MetricMarketCap, begin,
				time.Date(2022, 8, 15, 0, 0, 0, 0, tz()))).To(BeFalse())
			_, err := cache.Get(tickers, data.MetricMarketCap, begin,
				time.Date(2022, 8, 15, 0, 0, 0, 0, tz()))
			Expect(errors.Is(err, data.ErrRangeDoesNotExist)).To(BeTrue())
		})

		It("misses for a metric that was never stored", func() {
			_, err := cache.Get(tickers, data.MetricClose, begin, end)
			Expect(errors.Is(err, data.ErrRangeDoesNotExist)).To(BeTrue())
		})

		It("misses for a different ticker set", func() {
			_, err := cache.Get([]string{"AAPL"}, data.MetricMarketCap, begin, end)
			Expect(errors.Is(err, data.ErrRangeDoesNotExist)).To(BeTrue())
		})

		It("hits regardless of ticker order", func() {
			df, err := cache.Get([]string{"MSFT", "AAPL"}, data.MetricMarketCap, begin, end)
			Expect(err).To(BeNil())
			Expect(df.ColNames).To(Equal([]string{"AAPL", "MSFT"}))
		})

		It("rejects inverted ranges", func() {
			_, err := cache.Get(tickers, data.MetricMarketCap, end, begin)
			Expect(errors.Is(err, data.ErrBeginAfterEnd)).To(BeTrue())
		})

		It("returns a copy of the stored panel", func() {
			df, err := cache.Get(tickers, data.MetricMarketCap, begin, end)
			Expect(err).To(BeNil())
			df.Vals[0][0] = -1

			df2, err := cache.Get(tickers, data.MetricMarketCap, begin, end)
			Expect(err).To(BeNil())
			Expect(df2.Vals[0][0]).To(Equal(10.0))
		})

		It("ignores a set whose range is already covered", func() {
			err := cache.Set(tickers, data.MetricMarketCap,
				time.Date(2022, 8, 3, 0, 0, 0, 0, tz()),
				time.Date(2022, 8, 5, 0, 0, 0, 0, tz()),
				panelFrame([]int{3, 4, 5}, map[string][]float64{
					"AAPL": {-1, -1, -1},
					"MSFT": {-1, -1, -1},
				}))
			Expect(err).To(BeNil())

			df, err := cache.Get(tickers, data.MetricMarketCap, begin, end)
			Expect(err).To(BeNil())
			Expect(df.Vals[0]).To(Equal([]float64{10, 11, 12, 13, 14, 15, 16}))
		})
	})

	Context("when periods touch", func() {
		It("extends coverage with an adjacent panel", func() {
			err := cache.Set(tickers, data.MetricMarketCap, begin,
				time.Date(2022, 8, 4, 0, 0, 0, 0, tz()),
				panelFrame([]int{1, 2, 3, 4}, map[string][]float64{
					"AAPL": {10, 11, 12, 13},
					"MSFT": {20, 21, 22, 23},
				}))
			Expect(err).To(BeNil())

			err = cache.Set(tickers, data.MetricMarketCap,
				time.Date(2022, 8, 5, 0, 0, 0, 0, tz()), end,
				panelFrame([]int{5, 8, 9}, map[string][]float64{
					"AAPL": {14, 15, 16},
					"MSFT": {24, 25, 26},
				}))
			Expect(err).To(BeNil())

			df, err := cache.Get(tickers, data.MetricMarketCap, begin, end)
			Expect(err).To(BeNil())
			Expect(df.Len()).To(Equal(7))
			Expect(df.Vals[0]).To(Equal([]float64{10, 11, 12, 13, 14, 15, 16}))
			Expect(df.Vals[1]).To(Equal([]float64{20, 21, 22, 23, 24, 25, 26}))
		})

		It("prefers new values where an overlapping panel was re-fetched", func() {
			err := cache.Set(tickers, data.MetricMarketCap, begin,
				time.Date(2022, 8, 5, 0, 0, 0, 0, tz()),
				panelFrame([]int{1, 2, 3, 4, 5}, map[string][]float64{
					"AAPL": {10, 11, 12, 13, 14},
					"MSFT": {20, 21, 22, 23, 24},
				}))
			Expect(err).To(BeNil())

			err = cache.Set(tickers, data.MetricMarketCap,
				time.Date(2022, 8, 3, 0, 0, 0, 0, tz()), end,
				panelFrame([]int{3, 4, 5, 8, 9}, map[string][]float64{
					"AAPL": {112, 113, 114, 115, 116},
					"MSFT": {122, 123, 124, 125, 126},
				}))
			Expect(err).To(BeNil())

			df, err := cache.Get(tickers, data.MetricMarketCap, begin, end)
			Expect(err).To(BeNil())
			Expect(df.Vals[0]).To(Equal([]float64{10, 11, 112, 113, 114, 115, 116}))
			Expect(df.Vals[1]).To(Equal([]float64{20, 21, 122, 123, 124, 125, 126}))
		})

		It("replaces the entry when periods are disjoint", func() {
			err := cache.Set(tickers, data.MetricMarketCap, begin,
				time.Date(2022, 8, 2, 0, 0, 0, 0, tz()),
				panelFrame([]int{1, 2}, map[string][]float64{
					"AAPL": {10, 11},
					"MSFT": {20, 21},
				}))
			Expect(err).To(BeNil())

			err = cache.Set(tickers, data.MetricMarketCap,
				time.Date(2022, 8, 20, 0, 0, 0, 0, tz()),
				time.Date(2022, 8, 25, 0, 0, 0, 0, tz()),
				panelFrame([]int{22, 23}, map[string][]float64{
					"AAPL": {50, 51},
					"MSFT": {60, 61},
				}))
			Expect(err).To(BeNil())

			_, err = cache.Get(tickers, data.MetricMarketCap, begin,
				time.Date(2022, 8, 2, 0, 0, 0, 0, tz()))
			Expect(errors.Is(err, data.ErrRangeDoesNotExist)).To(BeTrue())

			df, err := cache.Get(tickers, data.MetricMarketCap,
				time.Date(2022, 8, 20, 0, 0, 0, 0, tz()),
				time.Date(2022, 8, 25, 0, 0, 0, 0, tz()))
			Expect(err).To(BeNil())
			Expect(df.Len()).To(Equal(2))
		})
	})

	Context("when the cache is full", func() {
		It("evicts the least recently used panel", func() {
			small := data.NewMetricCache(2)
			panel := panelFrame([]int{1, 2}, map[string][]float64{"AAPL": {1, 2}})

			Expect(small.Set([]string{"AAPL"}, data.MetricMarketCap, begin, end, panel)).To(BeNil())
			Expect(small.Set([]string{"MSFT"}, data.MetricMarketCap, begin, end, panel)).To(BeNil())
			Expect(small.Set([]string{"XOM"}, data.MetricMarketCap, begin, end, panel)).To(BeNil())

			Expect(small.Check([]string{"AAPL"}, data.MetricMarketCap, begin, end)).To(BeFalse())
			Expect(small.Check([]string{"XOM"}, data.MetricMarketCap, begin, end)).To(BeTrue())
		})
	})
})
