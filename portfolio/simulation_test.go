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

package portfolio_test

import (
	"context"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/capweight/capsim/common"
	"github.com/capweight/capsim/data"
	"github.com/capweight/capsim/dataframe"
	"github.com/capweight/capsim/portfolio"
)

func day(year int, month time.Month, dom int) time.Time {
	return time.Date(year, month, dom, 0, 0, 0, 0, common.GetTimezone())
}

func newSimulation() *portfolio.Simulation {
	return &portfolio.Simulation{
		InitialValue: 10000,
		AnnualFee:    0.0049,
	}
}

var _ = Describe("Simulation", func() {
	var (
		ctx context.Context
		sim *portfolio.Simulation
	)

	BeforeEach(func() {
		ctx = context.Background()
		sim = newSimulation()
	})

	Describe("Validate", func() {
		It("accepts sane parameters", func() {
			Expect(sim.Validate()).To(Succeed())
		})

		It("rejects a zero initial value", func() {
			sim.InitialValue = 0
			Expect(sim.Validate()).To(MatchError(portfolio.ErrInvalidInitialValue))
		})

		It("rejects a negative fee", func() {
			sim.AnnualFee = -0.01
			Expect(sim.Validate()).To(MatchError(portfolio.ErrInvalidFee))
		})

		It("rejects a fee of 100% or more", func() {
			sim.AnnualFee = 1.0
			Expect(sim.Validate()).To(MatchError(portfolio.ErrInvalidFee))
		})
	})

	Describe("NewSimulation", func() {
		Context("with no configuration", func() {
			It("falls back to the default initial value and fee", func() {
				configured, err := portfolio.NewSimulation()
				Expect(err).To(BeNil())
				Expect(configured.InitialValue).To(Equal(10000.0))
				Expect(configured.AnnualFee).To(Equal(0.0049))
			})
		})

		Context("with configured settings", func() {
			BeforeEach(func() {
				viper.Set("backtest.initial_value", 25000.0)
				viper.Set("backtest.annual_fee", 0.01)
			})

			AfterEach(func() {
				viper.Set("backtest.initial_value", 0.0)
				viper.Set("backtest.annual_fee", nil)
			})

			It("uses the configured values", func() {
				configured, err := portfolio.NewSimulation()
				Expect(err).To(BeNil())
				Expect(configured.InitialValue).To(Equal(25000.0))
				Expect(configured.AnnualFee).To(Equal(0.01))
			})

			It("allows a zero fee", func() {
				viper.Set("backtest.annual_fee", 0.0)
				configured, err := portfolio.NewSimulation()
				Expect(err).To(BeNil())
				Expect(configured.AnnualFee).To(Equal(0.0))
			})
		})

		Context("with an invalid fee", func() {
			BeforeEach(func() {
				viper.Set("backtest.annual_fee", 1.5)
			})

			AfterEach(func() {
				viper.Set("backtest.annual_fee", nil)
			})

			It("returns an error", func() {
				_, err := portfolio.NewSimulation()
				Expect(err).To(MatchError(portfolio.ErrInvalidFee))
			})
		})
	})

	Describe("Run", func() {
		Context("when the quarter ends mid-week", func() {
			var (
				dates    []time.Time
				returns  *dataframe.DataFrame
				schedule *data.Schedule
				plan     data.PortfolioPlan
				perf     *portfolio.Performance
			)

			BeforeEach(func() {
				// 2020-04-03 is both the Q2 rebalance date and the fee
				// date of the truncated year
				dates = []time.Time{
					day(2020, 3, 30),
					day(2020, 3, 31),
					day(2020, 4, 1),
					day(2020, 4, 2),
					day(2020, 4, 3),
				}
				returns = &dataframe.DataFrame{
					Dates:    dates,
					ColNames: []string{"AAPL", "MSFT"},
					Vals: [][]float64{
						{0, 0, 0.01, 0, 0},
						{0, 0, -0.02, 0, 0},
					},
				}
				schedule = data.BuildSchedule(dates)
				plan = data.PortfolioPlan{
					&data.Allocation{
						Date: day(2020, 3, 31),
						Members: map[string]float64{
							"AAPL": 100.0 / 150.0,
							"MSFT": 50.0 / 150.0,
						},
						MarketCaps: map[string]float64{
							"AAPL": 100,
							"MSFT": 50,
						},
					},
				}

				var err error
				perf, err = sim.Run(ctx, returns, schedule, plan)
				Expect(err).To(BeNil())
			})

			It("measures every date in the index", func() {
				Expect(perf.Measurements).To(HaveLen(5))
				for idx, measurement := range perf.Measurements {
					Expect(measurement.Time).To(Equal(dates[idx]))
				}
				Expect(perf.PeriodStart).To(Equal(dates[0]))
				Expect(perf.PeriodEnd).To(Equal(dates[4]))
			})

			It("starts both series at the initial value", func() {
				Expect(perf.Measurements[0].Value).To(Equal(10000.0))
				Expect(perf.Measurements[0].ValueWithFee).To(Equal(10000.0))
			})

			It("applies the cap-weighted daily return to both series", func() {
				expected := 10000 * (1 + (100.0/150.0)*0.01 + (50.0/150.0)*(-0.02))
				Expect(perf.Measurements[2].Value).To(BeNumerically("~", expected, 1e-9))
				Expect(perf.Measurements[2].ValueWithFee).To(BeNumerically("~", expected, 1e-9))
			})

			It("carries the value forward on zero-return days", func() {
				Expect(perf.Measurements[1].Value).To(Equal(10000.0))
				Expect(perf.Measurements[3].Value).To(Equal(perf.Measurements[2].Value))
			})

			It("keeps both series equal before the first fee date", func() {
				for _, measurement := range perf.Measurements[:4] {
					Expect(measurement.ValueWithFee).To(Equal(measurement.Value))
				}
			})

			It("charges the annual fee only to the with-fee series", func() {
				Expect(perf.Measurements[4].Value).To(Equal(perf.Measurements[3].Value))
				Expect(perf.Measurements[4].ValueWithFee).To(BeNumerically("~", perf.Measurements[3].ValueWithFee*(1-0.0049), 1e-9))
				Expect(perf.Measurements[4].ValueWithFee).To(BeNumerically("<", perf.Measurements[4].Value))
			})

			It("produces identical values when run twice", func() {
				again, err := sim.Run(ctx, returns, schedule, plan)
				Expect(err).To(BeNil())
				Expect(again.Measurements).To(HaveLen(len(perf.Measurements)))
				for idx, measurement := range again.Measurements {
					Expect(measurement.Value).To(Equal(perf.Measurements[idx].Value))
					Expect(measurement.ValueWithFee).To(Equal(perf.Measurements[idx].ValueWithFee))
				}
			})
		})

		Context("when the year ends with a positive return", func() {
			It("charges the fee after compounding the daily return", func() {
				dates := []time.Time{day(2020, 12, 30), day(2020, 12, 31)}
				returns := &dataframe.DataFrame{
					Dates:    dates,
					ColNames: []string{"AAPL"},
					Vals:     [][]float64{{0, 0.02}},
				}
				plan := data.PortfolioPlan{
					&data.Allocation{
						Date:    day(2020, 12, 31),
						Members: map[string]float64{"AAPL": 1.0},
					},
				}

				perf, err := sim.Run(ctx, returns, data.BuildSchedule(dates), plan)
				Expect(err).To(BeNil())

				final := perf.Measurements[1]
				Expect(final.Value).To(BeNumerically("~", 10200.0, 1e-9))
				Expect(final.ValueWithFee).To(BeNumerically("~", 10200.0*(1-0.0049), 1e-9))
			})
		})

		Context("when the year ends flat", func() {
			It("charges exactly the annual fee", func() {
				dates := []time.Time{day(2020, 12, 30), day(2020, 12, 31)}
				returns := &dataframe.DataFrame{
					Dates:    dates,
					ColNames: []string{"AAPL"},
					Vals:     [][]float64{{0, 0}},
				}
				plan := data.PortfolioPlan{
					&data.Allocation{
						Date:    day(2020, 12, 31),
						Members: map[string]float64{"AAPL": 1.0},
					},
				}

				perf, err := sim.Run(ctx, returns, data.BuildSchedule(dates), plan)
				Expect(err).To(BeNil())

				final := perf.Measurements[1]
				Expect(final.Value).To(Equal(10000.0))
				Expect(final.ValueWithFee).To(BeNumerically("~", 9951.0, 1e-9))
			})
		})

		Context("when the index spans two calendar years", func() {
			var perf *portfolio.Performance

			BeforeEach(func() {
				dates := []time.Time{
					day(2020, 12, 30),
					day(2020, 12, 31),
					day(2021, 1, 4),
					day(2021, 1, 5),
				}
				returns := &dataframe.DataFrame{
					Dates:    dates,
					ColNames: []string{"AAPL"},
					Vals:     [][]float64{{0, 0.01, 0.02, 0.01}},
				}
				plan := data.PortfolioPlan{
					&data.Allocation{
						Date:    day(2020, 12, 31),
						Members: map[string]float64{"AAPL": 1.0},
					},
				}

				var err error
				perf, err = sim.Run(ctx, returns, data.BuildSchedule(dates), plan)
				Expect(err).To(BeNil())
			})

			It("charges the fee once per calendar year", func() {
				expected := 10000 * 1.01 * 1.02 * 1.01
				expectedWithFee := 10000 * 1.01 * (1 - 0.0049) * 1.02 * 1.01 * (1 - 0.0049)
				final := perf.Measurements[3]
				Expect(final.Value).To(BeNumerically("~", expected, 1e-6))
				Expect(final.ValueWithFee).To(BeNumerically("~", expectedWithFee, 1e-6))
			})

			It("keeps the no-fee series above the with-fee series after the first fee date", func() {
				for _, measurement := range perf.Measurements[1:] {
					Expect(measurement.ValueWithFee).To(BeNumerically("<", measurement.Value))
				}
			})
		})

		Context("when the plan is empty", func() {
			var perf *portfolio.Performance

			BeforeEach(func() {
				dates := []time.Time{
					day(2020, 3, 30),
					day(2020, 3, 31),
					day(2020, 4, 1),
					day(2020, 4, 2),
					day(2020, 4, 3),
				}
				returns := &dataframe.DataFrame{
					Dates:    dates,
					ColNames: []string{"AAPL"},
					Vals:     [][]float64{{0, 0.5, -0.3, 0.2, 0.1}},
				}

				var err error
				perf, err = sim.Run(ctx, returns, data.BuildSchedule(dates), data.PortfolioPlan{})
				Expect(err).To(BeNil())
			})

			It("holds the no-fee series flat at the initial value", func() {
				for _, measurement := range perf.Measurements {
					Expect(measurement.Value).To(Equal(10000.0))
				}
			})

			It("still charges the fee on fee dates", func() {
				for _, measurement := range perf.Measurements[:4] {
					Expect(measurement.ValueWithFee).To(Equal(10000.0))
				}
				Expect(perf.Measurements[4].ValueWithFee).To(BeNumerically("~", 9951.0, 1e-9))
			})
		})

		Context("when the only allocation falls on the first index date", func() {
			It("never applies it", func() {
				dates := []time.Time{day(2022, 8, 1), day(2022, 8, 2), day(2022, 8, 3)}
				returns := &dataframe.DataFrame{
					Dates:    dates,
					ColNames: []string{"AAPL"},
					Vals:     [][]float64{{0, 0.5, 0.5}},
				}
				plan := data.PortfolioPlan{
					&data.Allocation{
						Date:    day(2022, 8, 1),
						Members: map[string]float64{"AAPL": 1.0},
					},
				}

				perf, err := sim.Run(ctx, returns, data.BuildSchedule(dates), plan)
				Expect(err).To(BeNil())
				for _, measurement := range perf.Measurements {
					Expect(measurement.Value).To(Equal(10000.0))
				}
			})
		})

		Context("when a later allocation arrives", func() {
			It("replaces the prior holdings wholesale", func() {
				dates := []time.Time{
					day(2022, 8, 1),
					day(2022, 8, 2),
					day(2022, 8, 3),
					day(2022, 8, 4),
					day(2022, 8, 5),
					day(2022, 8, 8),
				}
				returns := &dataframe.DataFrame{
					Dates:    dates,
					ColNames: []string{"AAPL", "MSFT"},
					Vals: [][]float64{
						{0, 0, 0.1, 0, 0.07, 0},
						{0, 0, 0, 0, 0.02, 0.03},
					},
				}
				plan := data.PortfolioPlan{
					&data.Allocation{
						Date:    day(2022, 8, 2),
						Members: map[string]float64{"AAPL": 1.0},
					},
					&data.Allocation{
						Date:    day(2022, 8, 4),
						Members: map[string]float64{"MSFT": 1.0},
					},
				}

				perf, err := sim.Run(ctx, returns, data.BuildSchedule(dates), plan)
				Expect(err).To(BeNil())

				Expect(perf.Measurements[2].Value).To(BeNumerically("~", 11000.0, 1e-9))
				Expect(perf.Measurements[3].Value).To(BeNumerically("~", 11000.0, 1e-9))
				// AAPL's +7% no longer counts; only MSFT's +2% does
				Expect(perf.Measurements[4].Value).To(BeNumerically("~", 11220.0, 1e-6))
				Expect(perf.Measurements[5].Value).To(BeNumerically("~", 11556.6, 1e-6))
			})
		})

		Context("when a held ticker has no usable return", func() {
			It("treats missing columns and missing values as zero", func() {
				dates := []time.Time{day(2022, 8, 1), day(2022, 8, 2), day(2022, 8, 3)}
				returns := &dataframe.DataFrame{
					Dates:    dates,
					ColNames: []string{"AAPL"},
					Vals:     [][]float64{{0, math.NaN(), 0.1}},
				}
				plan := data.PortfolioPlan{
					&data.Allocation{
						Date:    day(2022, 8, 2),
						Members: map[string]float64{"AAPL": 0.5, "ZZZZ": 0.5},
					},
				}

				perf, err := sim.Run(ctx, returns, data.BuildSchedule(dates), plan)
				Expect(err).To(BeNil())

				Expect(perf.Measurements[1].Value).To(Equal(10000.0))
				Expect(perf.Measurements[2].Value).To(BeNumerically("~", 10500.0, 1e-9))
			})
		})

		Context("when every day is a severe loss", func() {
			It("keeps the portfolio value positive", func() {
				dates := []time.Time{
					day(2022, 8, 1),
					day(2022, 8, 2),
					day(2022, 8, 3),
					day(2022, 8, 4),
					day(2022, 8, 5),
				}
				returns := &dataframe.DataFrame{
					Dates:    dates,
					ColNames: []string{"AAPL"},
					Vals:     [][]float64{{0, -0.5, -0.5, -0.5, -0.5}},
				}
				plan := data.PortfolioPlan{
					&data.Allocation{
						Date:    day(2022, 8, 2),
						Members: map[string]float64{"AAPL": 1.0},
					},
				}

				perf, err := sim.Run(ctx, returns, data.BuildSchedule(dates), plan)
				Expect(err).To(BeNil())

				final := perf.Measurements[4]
				Expect(final.Value).To(BeNumerically("~", 625.0, 1e-9))
				Expect(final.Value).To(BeNumerically(">", 0))
				Expect(final.ValueWithFee).To(BeNumerically(">", 0))
			})
		})

		Context("when the context is cancelled", func() {
			It("aborts the simulation", func() {
				cancelledCtx, cancel := context.WithCancel(context.Background())
				cancel()

				dates := []time.Time{day(2022, 8, 1), day(2022, 8, 2)}
				returns := &dataframe.DataFrame{
					Dates:    dates,
					ColNames: []string{"AAPL"},
					Vals:     [][]float64{{0, 0.01}},
				}

				perf, err := sim.Run(cancelledCtx, returns, data.BuildSchedule(dates), data.PortfolioPlan{})
				Expect(err).To(MatchError(context.Canceled))
				Expect(perf).To(BeNil())
			})
		})

		Context("when the return panel is empty", func() {
			It("returns ErrNoReturnData", func() {
				schedule := data.BuildSchedule([]time.Time{})
				_, err := sim.Run(ctx, &dataframe.DataFrame{}, schedule, data.PortfolioPlan{})
				Expect(err).To(MatchError(portfolio.ErrNoReturnData))

				_, err = sim.Run(ctx, nil, schedule, data.PortfolioPlan{})
				Expect(err).To(MatchError(portfolio.ErrNoReturnData))
			})
		})

		Context("when the parameters are invalid", func() {
			It("refuses to run", func() {
				sim.InitialValue = -5
				dates := []time.Time{day(2022, 8, 1), day(2022, 8, 2)}
				returns := &dataframe.DataFrame{
					Dates:    dates,
					ColNames: []string{"AAPL"},
					Vals:     [][]float64{{0, 0.01}},
				}

				_, err := sim.Run(ctx, returns, data.BuildSchedule(dates), data.PortfolioPlan{})
				Expect(err).To(MatchError(portfolio.ErrInvalidInitialValue))
			})
		})
	})
})
