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

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/capweight/capsim/backtest"
	"github.com/capweight/capsim/common"
	"github.com/capweight/capsim/data"
	"github.com/capweight/capsim/data/database"
	"github.com/capweight/capsim/observability/opentelemetry"
	"github.com/capweight/capsim/strategies"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	backtestBegin     string
	backtestEnd       string
	backtestCSVPath   string
	backtestChartPath string
	backtestJSONPath  string
	backtestSaveDB    bool
)

func init() {
	backtestCmd.Flags().String("source", "", "data source: xlsx or database (default: xlsx when --dataset is set)")
	bindBacktestFlag("backtest.source", "source")

	backtestCmd.Flags().StringP("dataset", "d", "", "xlsx dataset to backtest against")
	bindBacktestFlag("backtest.dataset", "dataset")

	backtestCmd.Flags().IntP("top-n", "n", 50, "number of securities to hold")
	bindBacktestFlag("backtest.top_n", "top-n")

	backtestCmd.Flags().Float64("initial-value", 10_000, "starting portfolio value")
	bindBacktestFlag("backtest.initial_value", "initial-value")

	backtestCmd.Flags().Float64("annual-fee", 0.0049, "management fee charged on the last trading day of each year")
	bindBacktestFlag("backtest.annual_fee", "annual-fee")

	backtestCmd.Flags().StringVar(&backtestBegin, "begin", "", "first date of the simulation as YYYY-MM-dd (default: 6 years before end)")
	backtestCmd.Flags().StringVar(&backtestEnd, "end", "", "last date of the simulation as YYYY-MM-dd (default: today)")
	backtestCmd.Flags().StringVar(&backtestCSVPath, "csv", "", "write the value series to a csv file")
	backtestCmd.Flags().StringVar(&backtestChartPath, "chart", "", "write a png chart of both value series")
	backtestCmd.Flags().StringVar(&backtestJSONPath, "json", "", "write the performance document to a json file")
	backtestCmd.Flags().BoolVar(&backtestSaveDB, "save-db", false, "persist the run record to the database")

	rootCmd.AddCommand(backtestCmd)
}

func bindBacktestFlag(key, flag string) {
	if err := viper.BindPFlag(key, backtestCmd.Flags().Lookup(flag)); err != nil {
		log.Panic().Err(err).Str("Flag", flag).Msg("could not bind flag")
	}
}

var backtestCmd = &cobra.Command{
	Use:   "backtest [flags] [tickers...]",
	Short: "Run a market-cap weighted top-N backtest",
	Long: `Simulate a quarterly rebalanced portfolio of the N largest securities by
market capitalization over the requested period. With no tickers the whole
universe known to the data source is used.`,
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		common.SetupCache()
		ctx := context.Background()

		shutdownTracing, err := opentelemetry.Setup()
		if err != nil {
			log.Error().Err(err).Msg("could not setup tracing")
		} else {
			defer func() {
				if err := shutdownTracing(ctx); err != nil {
					log.Error().Err(err).Msg("could not shutdown tracing")
				}
			}()
		}

		if data.SourceRequiresDatabase() || backtestSaveDB {
			if viper.GetString("database.url") == "" {
				log.Fatal().Msg("configured data source requires database.url to be set")
			}
			if err := database.Connect(ctx); err != nil {
				log.Fatal().Err(err).Msg("could not connect to database")
			}
		}

		strategies.InitializeStrategyMap()

		manager, err := data.NewManagerFromConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("could not create data manager")
		}

		universe := args
		if len(universe) == 0 {
			securities, err := manager.Securities(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("could not list securities; specify tickers on the command line")
			}
			for _, security := range securities {
				universe = append(universe, security.Ticker)
			}
		}

		begin, end := backtestPeriod()

		params := map[string]json.RawMessage{}
		topN, err := json.Marshal(viper.GetInt("backtest.top_n"))
		if err != nil {
			log.Fatal().Err(err).Msg("could not serialize strategy params")
		}
		params["numHoldings"] = topN

		bt, err := backtest.Run(ctx, "topcap", params, universe, begin, end, manager, nil)
		if err != nil {
			log.Fatal().Err(err).Msg("backtest failed")
		}

		fmt.Printf("Backtest %s over %d securities from %s to %s\n\n", bt.ID,
			len(bt.Universe), begin.Format("2006-01-02"), end.Format("2006-01-02"))
		fmt.Println(bt.Performance.Summary())

		if backtestCSVPath != "" {
			if err := bt.Performance.SaveCSV(backtestCSVPath); err != nil {
				log.Fatal().Err(err).Msg("could not write csv")
			}
			log.Info().Str("FileName", backtestCSVPath).Msg("wrote csv")
		}

		if backtestChartPath != "" {
			if err := bt.Performance.SaveChart(backtestChartPath); err != nil {
				log.Fatal().Err(err).Msg("could not write chart")
			}
			log.Info().Str("FileName", backtestChartPath).Msg("wrote chart")
		}

		if backtestJSONPath != "" {
			if err := bt.Performance.SaveJSON(backtestJSONPath); err != nil {
				log.Fatal().Err(err).Msg("could not write json")
			}
			log.Info().Str("FileName", backtestJSONPath).Msg("wrote json")
		}

		if backtestSaveDB {
			if err := bt.Save(ctx); err != nil {
				log.Fatal().Err(err).Msg("could not save run record")
			}
		}
	},
}

// backtestPeriod resolves the --begin / --end flags; end defaults to today
// and begin to six years before end
func backtestPeriod() (time.Time, time.Time) {
	nyc := common.GetTimezone()

	now := time.Now().In(nyc)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, nyc)
	if backtestEnd != "" {
		var err error
		if end, err = time.ParseInLocation("2006-01-02", backtestEnd, nyc); err != nil {
			log.Fatal().Err(err).Str("End", backtestEnd).Msg("could not parse end date")
		}
	}

	begin := end.AddDate(-6, 0, 0)
	if backtestBegin != "" {
		var err error
		if begin, err = time.ParseInLocation("2006-01-02", backtestBegin, nyc); err != nil {
			log.Fatal().Err(err).Str("Begin", backtestBegin).Msg("could not parse begin date")
		}
	}

	if end.Before(begin) {
		log.Fatal().Time("Begin", begin).Time("End", end).Msg("end date is before begin date")
	}

	return begin, end
}
