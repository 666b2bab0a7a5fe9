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

package handler

import (
	"errors"
	"time"

	"github.com/capweight/capsim/backtest"
	"github.com/capweight/capsim/common"
	"github.com/capweight/capsim/data"
	"github.com/capweight/capsim/messenger"
	"github.com/capweight/capsim/portfolio"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// BacktestParams is the POST /v1/backtests request body. Omitted values
// fall back to the server's configured defaults.
type BacktestParams struct {
	Universe     []string `json:"universe"`
	Begin        string   `json:"begin"`
	End          string   `json:"end"`
	TopN         int      `json:"topN"`
	InitialValue float64  `json:"initialValue"`
	AnnualFee    *float64 `json:"annualFee"`
}

type backtestResponse struct {
	Summary     *backtest.RunSummary   `json:"summary"`
	Performance *portfolio.Performance `json:"performance"`
}

// RunBacktest runs a top-cap backtest over the requested universe and
// returns the performance document plus headline statistics
func RunBacktest(c *fiber.Ctx) error {
	if dataManager == nil {
		log.Error().Msg("no data manager configured for backtest handler")
		return fiber.ErrServiceUnavailable
	}

	var params BacktestParams
	if err := c.BodyParser(&params); err != nil {
		log.Warn().Err(err).Msg("could not parse backtest request body")
		return fiber.ErrBadRequest
	}

	universe := params.Universe
	if len(universe) == 0 {
		securities, err := dataManager.Securities(c.UserContext())
		if err != nil {
			log.Error().Err(err).Msg("could not list securities for default universe")
			return fiber.ErrBadRequest
		}
		universe = make([]string, len(securities))
		for idx, security := range securities {
			universe[idx] = security.Ticker
		}
	}

	begin, end, err := parsePeriod(params.Begin, params.End)
	if err != nil {
		return fiber.ErrNotAcceptable
	}

	sim, err := portfolio.NewSimulation()
	if err != nil {
		return fiber.ErrNotAcceptable
	}
	if params.InitialValue != 0 {
		sim.InitialValue = params.InitialValue
	}
	if params.AnnualFee != nil {
		sim.AnnualFee = *params.AnnualFee
	}
	if err := sim.Validate(); err != nil {
		log.Warn().Err(err).Msg("invalid simulation parameters in backtest request")
		return fiber.ErrNotAcceptable
	}

	topN := params.TopN
	if topN == 0 {
		topN = viper.GetInt("backtest.top_n")
	}
	stratParams := map[string]json.RawMessage{}
	if topN != 0 {
		raw, err := json.Marshal(topN)
		if err != nil {
			return fiber.ErrInternalServerError
		}
		stratParams["numHoldings"] = raw
	}

	bt, err := backtest.Run(c.UserContext(), "topcap", stratParams, universe, begin, end, dataManager, sim)
	if err != nil {
		if errors.Is(err, data.ErrNoMarketCapData) || errors.Is(err, data.ErrEmptyUniverse) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": err.Error()})
		}
		log.Error().Err(err).Msg("backtest failed")
		return fiber.ErrInternalServerError
	}

	if err := bt.Publish(); err != nil {
		log.Warn().Err(err).Msg("could not publish backtest result")
	}

	return c.JSON(backtestResponse{
		Summary:     bt.Summary(),
		Performance: bt.Performance,
	})
}

// QueueBacktest enqueues the request for a worker instead of running it
// inline. Requires messaging to be configured.
func QueueBacktest(c *fiber.Ctx) error {
	if !messenger.Enabled() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "error", "message": "messaging is not configured"})
	}

	var params BacktestParams
	if err := c.BodyParser(&params); err != nil {
		log.Warn().Err(err).Msg("could not parse backtest request body")
		return fiber.ErrBadRequest
	}

	req := &messenger.BacktestRequest{
		Universe:     params.Universe,
		Begin:        params.Begin,
		End:          params.End,
		TopN:         params.TopN,
		InitialValue: params.InitialValue,
	}
	if params.AnnualFee != nil {
		req.AnnualFee = *params.AnnualFee
	}

	if err := messenger.CreateBacktestRequest(req); err != nil {
		log.Error().Err(err).Msg("could not queue backtest request")
		return fiber.ErrInternalServerError
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued", "requestId": req.RequestID})
}

// parsePeriod resolves the requested begin/end date strings; end accepts
// "now" or blank for the current exchange date
func parsePeriod(beginStr, endStr string) (time.Time, time.Time, error) {
	nyc := common.GetTimezone()

	var end time.Time
	if endStr == "" || endStr == "now" {
		now := time.Now().In(nyc)
		end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, nyc)
	} else {
		var err error
		if end, err = time.ParseInLocation("2006-01-02", endStr, nyc); err != nil {
			log.Warn().Err(err).Str("EndDateStr", endStr).Msg("cannot parse end date")
			return time.Time{}, time.Time{}, err
		}
	}

	begin := end.AddDate(-6, 0, 0)
	if beginStr != "" {
		var err error
		if begin, err = time.ParseInLocation("2006-01-02", beginStr, nyc); err != nil {
			log.Warn().Err(err).Str("BeginDateStr", beginStr).Msg("cannot parse begin date")
			return time.Time{}, time.Time{}, err
		}
	}

	if end.Before(begin) {
		return time.Time{}, time.Time{}, data.ErrInvalidTimeRange
	}

	return begin, end, nil
}
