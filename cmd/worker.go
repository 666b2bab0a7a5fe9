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
	"os"
	"os/signal"
	"time"

	"github.com/capweight/capsim/backtest"
	"github.com/capweight/capsim/common"
	"github.com/capweight/capsim/data"
	"github.com/capweight/capsim/data/database"
	"github.com/capweight/capsim/messenger"
	"github.com/capweight/capsim/portfolio"
	"github.com/capweight/capsim/strategies"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var workerPollInterval time.Duration

func init() {
	workerCmd.Flags().DurationVar(&workerPollInterval, "poll-interval", 30*time.Second, "how long to wait when the request queue is empty")
	rootCmd.AddCommand(workerCmd)
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued backtest requests",
	Long: `Pull backtest requests from the NATS requests subject, run each one and
publish the run summary to the results subject.`,
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		common.SetupCache()
		ctx := context.Background()

		if err := messenger.Initialize(); err != nil {
			log.Fatal().Err(err).Msg("could not connect to NATS")
		}
		if !messenger.Enabled() {
			log.Fatal().Msg("worker requires nats.server to be configured")
		}
		defer messenger.Shutdown()

		if data.SourceRequiresDatabase() || viper.GetString("database.url") != "" {
			if viper.GetString("database.url") == "" {
				log.Fatal().Msg("configured data source requires database.url to be set")
			}
			if err := database.Connect(ctx); err != nil {
				log.Fatal().Err(err).Msg("could not connect to database")
			}
		}

		manager, err := data.NewManagerFromConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("could not create data manager")
		}

		strategies.InitializeStrategyMap()

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)

		log.Info().Msg("worker started")
		for {
			select {
			case sig := <-c:
				log.Info().Str("Signal", sig.String()).Msg("shutting down")
				return
			default:
			}

			msg, err := messenger.NextBacktestRequest()
			if err != nil {
				log.Error().Err(err).Msg("could not fetch backtest request")
				time.Sleep(workerPollInterval)
				continue
			}
			if msg == nil {
				time.Sleep(workerPollInterval)
				continue
			}

			processRequest(ctx, manager, msg.Data)

			if err := msg.Ack(); err != nil {
				log.Error().Err(err).Msg("could not ack backtest request")
			}
		}
	},
}

// processRequest runs a single queued backtest and publishes its summary.
// Failures are logged and the message still gets acked; a malformed or
// impossible request would fail identically on every redelivery.
func processRequest(ctx context.Context, manager *data.Manager, payload []byte) {
	var req messenger.BacktestRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Error().Err(err).Msg("could not unmarshal backtest request")
		return
	}

	subLog := log.With().Str("RequestID", req.RequestID).Int("NumSecurities", len(req.Universe)).Logger()
	subLog.Info().Msg("processing backtest request")

	universe := req.Universe
	if len(universe) == 0 {
		securities, err := manager.Securities(ctx)
		if err != nil {
			subLog.Error().Err(err).Msg("could not list securities for default universe")
			return
		}
		for _, security := range securities {
			universe = append(universe, security.Ticker)
		}
	}

	begin, end, err := requestPeriod(&req)
	if err != nil {
		subLog.Error().Err(err).Msg("could not parse request period")
		return
	}

	sim, err := portfolio.NewSimulation()
	if err != nil {
		subLog.Error().Err(err).Msg("could not create simulation")
		return
	}
	if req.InitialValue != 0 {
		sim.InitialValue = req.InitialValue
	}
	if req.AnnualFee != 0 {
		sim.AnnualFee = req.AnnualFee
	}
	if err := sim.Validate(); err != nil {
		subLog.Error().Err(err).Msg("invalid simulation parameters in request")
		return
	}

	topN := req.TopN
	if topN == 0 {
		topN = viper.GetInt("backtest.top_n")
	}
	params := map[string]json.RawMessage{}
	if topN != 0 {
		raw, err := json.Marshal(topN)
		if err != nil {
			subLog.Error().Err(err).Msg("could not serialize strategy params")
			return
		}
		params["numHoldings"] = raw
	}

	bt, err := backtest.Run(ctx, "topcap", params, universe, begin, end, manager, sim)
	if err != nil {
		subLog.Error().Err(err).Msg("backtest failed")
		return
	}

	if viper.GetString("database.url") != "" {
		if err := bt.Save(ctx); err != nil {
			subLog.Error().Err(err).Msg("could not save run record")
		}
	}

	if err := bt.Publish(); err != nil {
		subLog.Error().Err(err).Msg("could not publish run summary")
		return
	}

	subLog.Info().Str("BacktestID", bt.ID.String()).Msg("published backtest result")
}

func requestPeriod(req *messenger.BacktestRequest) (time.Time, time.Time, error) {
	nyc := common.GetTimezone()

	now := time.Now().In(nyc)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, nyc)
	if req.End != "" {
		var err error
		if end, err = time.ParseInLocation("2006-01-02", req.End, nyc); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	begin := end.AddDate(-6, 0, 0)
	if req.Begin != "" {
		var err error
		if begin, err = time.ParseInLocation("2006-01-02", req.Begin, nyc); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if end.Before(begin) {
		return time.Time{}, time.Time{}, data.ErrInvalidTimeRange
	}

	return begin, end, nil
}
