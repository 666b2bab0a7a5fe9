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
	"context"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"

	"github.com/capweight/capsim/data"
	"github.com/capweight/capsim/data/database"
	"github.com/capweight/capsim/pgxmockhelper"
)

var _ = Describe("PgDb", func() {
	var (
		ctx      context.Context
		dbPool   pgxmock.PgxConnIface
		provider *data.PgDb
		begin    time.Time
		end      time.Time
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()

		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)

		provider = data.NewPgDb()
		begin = time.Date(2022, 8, 1, 0, 0, 0, 0, tz())
		end = time.Date(2022, 8, 31, 0, 0, 0, 0, tz())
	})

	AfterEach(func() {
		dbPool.Close(context.Background())
	})

	Describe("listing securities", func() {
		It("returns each distinct ticker", func() {
			pgxmockhelper.MockSecuritiesQuery(dbPool, []string{"CVX", "XOM"})

			securities, err := provider.Securities(ctx)
			Expect(err).To(BeNil())
			Expect(securities).To(HaveLen(2))
			Expect(securities[0].Ticker).To(Equal("CVX"))
			Expect(securities[1].Ticker).To(Equal("XOM"))
			Expect(dbPool.ExpectationsWereMet()).To(BeNil())
		})
	})

	Describe("loading metrics", func() {
		It("returns closing prices with NULL as NaN", func() {
			pgxmockhelper.MockMetricQuery(dbPool, "testdata/eod.csv", "XOM", "close", begin, end)

			df, err := provider.GetMetric(ctx, "xom", data.MetricClose, begin, end)
			Expect(err).To(BeNil())
			Expect(df.ColNames).To(Equal([]string{"XOM"}))
			Expect(df.Len()).To(Equal(3))
			Expect(df.Dates[0]).To(Equal(time.Date(2022, 8, 1, 0, 0, 0, 0, tz())))
			Expect(df.Vals[0][0]).To(Equal(90.5))
			Expect(math.IsNaN(df.Vals[0][1])).To(BeTrue())
			Expect(df.Vals[0][2]).To(Equal(92.25))
			Expect(dbPool.ExpectationsWereMet()).To(BeNil())
		})

		It("returns shares outstanding", func() {
			pgxmockhelper.MockMetricQuery(dbPool, "testdata/eod.csv", "CVX", "shares_outstanding", begin, end)

			df, err := provider.GetMetric(ctx, "CVX", data.MetricShares, begin, end)
			Expect(err).To(BeNil())
			Expect(df.Vals[0]).To(Equal([]float64{1950000000, 1950000000, 1950000000}))
		})

		It("returns market cap", func() {
			pgxmockhelper.MockMetricQuery(dbPool, "testdata/eod.csv", "CVX", "market_cap", begin, end)

			df, err := provider.GetMetric(ctx, "CVX", data.MetricMarketCap, begin, end)
			Expect(err).To(BeNil())
			Expect(df.Vals[0]).To(Equal([]float64{302445000000, 301665000000, 306540000000}))
		})

		It("honors the requested date range", func() {
			pgxmockhelper.MockMetricQuery(dbPool, "testdata/eod.csv", "CVX", "close",
				time.Date(2022, 8, 2, 0, 0, 0, 0, tz()), time.Date(2022, 8, 3, 0, 0, 0, 0, tz()))

			df, err := provider.GetMetric(ctx, "CVX", data.MetricClose,
				time.Date(2022, 8, 2, 0, 0, 0, 0, tz()), time.Date(2022, 8, 3, 0, 0, 0, 0, tz()))
			Expect(err).To(BeNil())
			Expect(df.Vals[0]).To(Equal([]float64{154.7, 157.2}))
		})

		It("rejects an inverted time range", func() {
			_, err := provider.GetMetric(ctx, "XOM", data.MetricClose, end, begin)
			Expect(errors.Is(err, data.ErrInvalidTimeRange)).To(BeTrue())
		})

		It("rejects unsupported metrics", func() {
			_, err := provider.GetMetric(ctx, "XOM", data.Metric("volume"), begin, end)
			Expect(errors.Is(err, data.ErrUnsupportedMetric)).To(BeTrue())
		})

		It("rolls back when the query fails", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("event_date").WillReturnError(errors.New("connection reset"))
			dbPool.ExpectRollback()

			_, err := provider.GetMetric(ctx, "XOM", data.MetricClose, begin, end)
			Expect(err).ToNot(BeNil())
			Expect(dbPool.ExpectationsWereMet()).To(BeNil())
		})
	})

	Describe("saving eod metrics", func() {
		It("upserts one row per date", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectExec("INSERT INTO eod").WillReturnResult(pgconn.CommandTag("INSERT 0 1"))
			dbPool.ExpectExec("INSERT INTO eod").WillReturnResult(pgconn.CommandTag("INSERT 0 1"))
			dbPool.ExpectExec("INSERT INTO eod").WillReturnResult(pgconn.CommandTag("INSERT 0 1"))
			dbPool.ExpectCommit()

			eod := eodFixture([]int{1, 2, 3},
				[]float64{90.5, math.NaN(), 92.25},
				[]float64{4230000000, 4230000000, 4235000000})
			Expect(provider.SaveEOD(ctx, "xom", eod)).To(BeNil())
			Expect(dbPool.ExpectationsWereMet()).To(BeNil())
		})

		It("rolls back when an upsert fails", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectExec("INSERT INTO eod").WillReturnError(errors.New("duplicate key"))
			dbPool.ExpectRollback()

			eod := eodFixture([]int{1}, []float64{90.5}, []float64{4230000000})
			Expect(provider.SaveEOD(ctx, "XOM", eod)).ToNot(BeNil())
			Expect(dbPool.ExpectationsWereMet()).To(BeNil())
		})

		It("rejects eod frames missing a metric column", func() {
			eod := eodFixture([]int{1}, []float64{90.5}, []float64{4230000000})
			eod.ColNames = []string{"close", "shares_outstanding", "volume"}
			err := provider.SaveEOD(ctx, "XOM", eod)
			Expect(errors.Is(err, data.ErrUnsupportedMetric)).To(BeTrue())
		})
	})
})
