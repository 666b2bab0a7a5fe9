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
	"time"

	"github.com/capweight/capsim/common"
	"github.com/capweight/capsim/data"
	"github.com/capweight/capsim/data/database"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	fetchOut    string
	fetchSaveDB bool
	fetchDaemon bool
)

func init() {
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "write the dataset to an xlsx workbook")
	fetchCmd.Flags().BoolVar(&fetchSaveDB, "save-db", false, "persist the dataset to the eod database table")

	fetchCmd.Flags().IntP("years", "y", 6, "number of years of history to download")
	if err := viper.BindPFlag("fetch.years", fetchCmd.Flags().Lookup("years")); err != nil {
		log.Panic().Err(err).Msg("could not bind fetch.years")
	}

	fetchCmd.Flags().BoolVar(&fetchDaemon, "daemon", false, "keep running and re-fetch on the fetch.cron schedule")
	fetchCmd.Flags().String("cron", "0 22 * * MON-FRI", "cron spec used with --daemon")
	if err := viper.BindPFlag("fetch.cron", fetchCmd.Flags().Lookup("cron")); err != nil {
		log.Panic().Err(err).Msg("could not bind fetch.cron")
	}

	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [flags] tickers...",
	Short: "Download eod data from Yahoo Finance",
	Long: `Download daily closes and shares outstanding for each ticker, compute the
per-day market capitalization and persist the dataset to an xlsx workbook
and/or the eod database table.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		ctx := context.Background()

		if fetchOut == "" && !fetchSaveDB {
			log.Fatal().Msg("nothing to do: specify --out and/or --save-db")
		}

		if fetchSaveDB {
			if err := database.Connect(ctx); err != nil {
				log.Fatal().Err(err).Msg("could not connect to database")
			}
		}

		if !fetchDaemon {
			fetchDataset(ctx, args)
			return
		}

		spec := viper.GetString("fetch.cron")
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(spec, func() {
			fetchDataset(ctx, args)
		}); err != nil {
			log.Fatal().Err(err).Str("CronSpec", spec).Msg("could not schedule fetch")
		}
		log.Info().Str("CronSpec", spec).Msg("starting fetch daemon")
		scheduler.Run()
	},
}

// fetchDataset downloads every requested ticker from yahoo and persists the
// results. Tickers that fail to download are logged and skipped so one bad
// symbol does not lose the rest of the dataset.
func fetchDataset(ctx context.Context, tickers []string) {
	nyc := common.GetTimezone()
	now := time.Now().In(nyc)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, nyc)
	begin := end.AddDate(-viper.GetInt("fetch.years"), 0, 0)

	common.ArrToUpper(tickers)

	yahoo := data.NewYahoo()
	var store *data.XlsxStore
	if fetchOut != "" {
		store = data.NewXlsxStore()
	}
	var pgdb *data.PgDb
	if fetchSaveDB {
		pgdb = data.NewPgDb()
	}

	numSaved := 0
	for _, ticker := range tickers {
		subLog := log.With().Str("Ticker", ticker).Logger()

		eod, err := yahoo.FetchEOD(ctx, ticker, begin, end)
		if err != nil {
			subLog.Error().Err(err).Msg("could not download eod data; skipping ticker")
			continue
		}

		if store != nil {
			if err := store.AddSecurity(ticker, eod); err != nil {
				subLog.Error().Err(err).Msg("could not add security to workbook")
				continue
			}
		}

		if pgdb != nil {
			if err := pgdb.SaveEOD(ctx, ticker, eod); err != nil {
				subLog.Error().Err(err).Msg("could not save eod data to database")
				continue
			}
		}

		subLog.Info().Int("NumRows", eod.Len()).Msg("fetched eod data")
		numSaved++
	}

	if numSaved == 0 {
		log.Error().Msg("no tickers could be downloaded")
		return
	}

	if store != nil {
		if err := store.Save(fetchOut); err != nil {
			log.Fatal().Err(err).Str("FileName", fetchOut).Msg("could not save workbook")
		}
		log.Info().Str("FileName", fetchOut).Int("NumSecurities", numSaved).Msg("wrote dataset")
	}
}
