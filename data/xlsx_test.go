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
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/capweight/capsim/data"
	"github.com/capweight/capsim/dataframe"
)

func eodFixture(days []int, close, shares []float64) *dataframe.DataFrame {
	dates := make([]time.Time, len(days))
	marketCap := make([]float64, len(days))
	for idx, dom := range days {
		dates[idx] = time.Date(2022, 8, dom, 0, 0, 0, 0, tz())
		marketCap[idx] = close[idx] * shares[idx]
	}
	return &dataframe.DataFrame{
		Dates:    dates,
		ColNames: []string{string(data.MetricClose), string(data.MetricShares), string(data.MetricMarketCap)},
		Vals:     [][]float64{close, shares, marketCap},
	}
}

var _ = Describe("XlsxStore", func() {
	var (
		ctx   context.Context
		store *data.XlsxStore
		begin time.Time
		end   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		begin = time.Date(2022, 8, 1, 0, 0, 0, 0, tz())
		end = time.Date(2022, 8, 31, 0, 0, 0, 0, tz())

		writer := data.NewXlsxStore()
		err := writer.AddSecurity("xom", eodFixture([]int{1, 2, 3},
			[]float64{90.5, math.NaN(), 92.25},
			[]float64{4230000000, 4230000000, 4235000000}))
		Expect(err).To(BeNil())
		err = writer.AddSecurity("CVX", eodFixture([]int{1, 2, 3},
			[]float64{155.1, 154.7, 157.2},
			[]float64{1950000000, 1950000000, 1950000000}))
		Expect(err).To(BeNil())

		buf := &bytes.Buffer{}
		Expect(writer.Write(buf)).To(BeNil())

		store, err = data.OpenXlsxBinary(buf.Bytes())
		Expect(err).To(BeNil())
	})

	It("lists saved securities in ticker order", func() {
		securities, err := store.Securities(ctx)
		Expect(err).To(BeNil())
		Expect(securities).To(HaveLen(2))
		Expect(securities[0].Ticker).To(Equal("CVX"))
		Expect(securities[1].Ticker).To(Equal("XOM"))
	})

	It("round-trips close prices", func() {
		df, err := store.GetMetric(ctx, "XOM", data.MetricClose, begin, end)
		Expect(err).To(BeNil())
		Expect(df.ColNames).To(Equal([]string{"XOM"}))
		Expect(df.Dates).To(Equal([]time.Time{
			time.Date(2022, 8, 1, 0, 0, 0, 0, tz()),
			time.Date(2022, 8, 2, 0, 0, 0, 0, tz()),
			time.Date(2022, 8, 3, 0, 0, 0, 0, tz()),
		}))
		Expect(df.Vals[0][0]).To(Equal(90.5))
		Expect(df.Vals[0][2]).To(Equal(92.25))
	})

	It("round-trips NaN as blank cells", func() {
		df, err := store.GetMetric(ctx, "XOM", data.MetricClose, begin, end)
		Expect(err).To(BeNil())
		Expect(math.IsNaN(df.Vals[0][1])).To(BeTrue())

		mcap, err := store.GetMetric(ctx, "XOM", data.MetricMarketCap, begin, end)
		Expect(err).To(BeNil())
		Expect(math.IsNaN(mcap.Vals[0][1])).To(BeTrue())
	})

	It("round-trips shares outstanding", func() {
		df, err := store.GetMetric(ctx, "XOM", data.MetricShares, begin, end)
		Expect(err).To(BeNil())
		Expect(df.Vals[0]).To(Equal([]float64{4230000000, 4230000000, 4235000000}))
	})

	It("trims to the requested range", func() {
		df, err := store.GetMetric(ctx, "CVX", data.MetricClose,
			time.Date(2022, 8, 2, 0, 0, 0, 0, tz()),
			time.Date(2022, 8, 3, 0, 0, 0, 0, tz()))
		Expect(err).To(BeNil())
		Expect(df.Len()).To(Equal(2))
		Expect(df.Vals[0]).To(Equal([]float64{154.7, 157.2}))
	})

	It("errors for an unknown ticker", func() {
		_, err := store.GetMetric(ctx, "MISSING", data.MetricClose, begin, end)
		Expect(errors.Is(err, data.ErrNotFound)).To(BeTrue())
	})

	It("rejects unsupported metrics", func() {
		_, err := store.GetMetric(ctx, "XOM", data.Metric("volume"), begin, end)
		Expect(errors.Is(err, data.ErrUnsupportedMetric)).To(BeTrue())
	})

	It("rejects eod frames missing a metric column", func() {
		writer := data.NewXlsxStore()
		err := writer.AddSecurity("BAD", &dataframe.DataFrame{
			Dates:    []time.Time{time.Date(2022, 8, 1, 0, 0, 0, 0, tz())},
			ColNames: []string{string(data.MetricClose)},
			Vals:     [][]float64{{1.0}},
		})
		Expect(errors.Is(err, data.ErrUnsupportedMetric)).To(BeTrue())
	})

	It("saves and loads a workbook from disk", func() {
		path := filepath.Join(GinkgoT().TempDir(), "dataset.xlsx")

		writer := data.NewXlsxStore()
		err := writer.AddSecurity("SLB", eodFixture([]int{1, 2},
			[]float64{35.5, 36.1},
			[]float64{1410000000, 1410000000}))
		Expect(err).To(BeNil())
		Expect(writer.Save(path)).To(BeNil())

		loaded, err := data.OpenXlsxStore(path)
		Expect(err).To(BeNil())

		securities, err := loaded.Securities(ctx)
		Expect(err).To(BeNil())
		Expect(securities).To(HaveLen(1))
		Expect(securities[0].Ticker).To(Equal("SLB"))
	})
})
