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

// Package backtest runs a strategy end to end: build the metric panels,
// derive the rebalance schedule, compute the portfolio plan and simulate it
// over the return panel. Completed runs can be persisted to the database
// and published over NATS.
package backtest

import (
	"context"
	"errors"
	"time"

	"github.com/capweight/capsim/data"
	"github.com/capweight/capsim/data/database"
	"github.com/capweight/capsim/messenger"
	"github.com/capweight/capsim/observability/opentelemetry"
	"github.com/capweight/capsim/portfolio"
	"github.com/capweight/capsim/strategies"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrStrategyNotFound = errors.New("strategy not found")

// Backtest is a completed strategy run
type Backtest struct {
	ID          uuid.UUID
	Shortcode   string
	Params      map[string]json.RawMessage
	Universe    []string
	Begin       time.Time
	End         time.Time
	Plan        data.PortfolioPlan
	Performance *portfolio.Performance
}

// RunSummary is the headline result of a backtest; it is what gets
// persisted to the database and published to NATS
type RunSummary struct {
	ID                  string    `json:"id"`
	Shortcode           string    `json:"shortcode"`
	Universe            []string  `json:"universe"`
	Begin               time.Time `json:"begin"`
	End                 time.Time `json:"end"`
	NumAllocations      int       `json:"numAllocations"`
	TotalReturn         float64   `json:"totalReturn"`
	TotalReturnWithFee  float64   `json:"totalReturnWithFee"`
	Cagr                float64   `json:"cagr"`
	CagrWithFee         float64   `json:"cagrWithFee"`
	FinalBalance        float64   `json:"finalBalance"`
	FinalBalanceWithFee float64   `json:"finalBalanceWithFee"`
	ComputedOn          time.Time `json:"computedOn"`
}

// Run executes the strategy identified by shortcode over the universe. The
// market cap and return panels are assembled through the manager; the
// rebalance and fee schedule is derived from the market cap panel's date
// index. A nil sim uses the configured simulation defaults.
// ErrNoMarketCapData from panel assembly aborts the run before any
// simulation happens.
func Run(ctx context.Context, shortcode string, params map[string]json.RawMessage, universe []string, begin, end time.Time, manager *data.Manager, sim *portfolio.Simulation) (*Backtest, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "backtest.Run")
	defer span.End()
	span.SetAttributes(
		attribute.KeyValue{
			Key:   "Shortcode",
			Value: attribute.StringValue(shortcode),
		},
		attribute.KeyValue{
			Key:   "NumSecurities",
			Value: attribute.IntValue(len(universe)),
		},
	)

	subLog := log.With().Str("Shortcode", shortcode).Int("NumSecurities", len(universe)).Time("Begin", begin).Time("End", end).Logger()

	strat, ok := strategies.StrategyMap[shortcode]
	if !ok {
		subLog.Error().Msg("unknown strategy shortcode")
		return nil, ErrStrategyNotFound
	}

	stratObject, err := strat.Factory(params)
	if err != nil {
		subLog.Error().Err(err).Msg("could not create strategy")
		return nil, err
	}

	start := time.Now()
	marketCap, returns, err := manager.Panels(ctx, universe, begin, end)
	if err != nil {
		span.SetStatus(codes.Error, "panel assembly failed")
		return nil, err
	}
	panelDur := time.Since(start).Round(time.Millisecond)

	schedule := data.BuildSchedule(marketCap.Dates)

	start = time.Now()
	plan, err := stratObject.Compute(ctx, marketCap, schedule)
	if err != nil {
		subLog.Error().Err(err).Msg("could not compute strategy plan")
		return nil, err
	}
	computeDur := time.Since(start).Round(time.Millisecond)

	if len(plan) == 0 {
		subLog.Warn().Msg("strategy produced no allocations; value series will stay flat")
	}

	if sim == nil {
		if sim, err = portfolio.NewSimulation(); err != nil {
			return nil, err
		}
	}

	start = time.Now()
	perf, err := sim.Run(ctx, returns, schedule, plan)
	if err != nil {
		return nil, err
	}
	simDur := time.Since(start).Round(time.Millisecond)

	subLog.Info().
		Dur("PanelDur", panelDur).
		Dur("StratComputeDur", computeDur).
		Dur("SimDur", simDur).
		Int("NumAllocations", len(plan)).
		Msg("backtest complete")

	return &Backtest{
		ID:          uuid.New(),
		Shortcode:   shortcode,
		Params:      params,
		Universe:    universe,
		Begin:       begin,
		End:         end,
		Plan:        plan,
		Performance: perf,
	}, nil
}

// Summary extracts the headline statistics of the run
func (b *Backtest) Summary() *RunSummary {
	return &RunSummary{
		ID:                  b.ID.String(),
		Shortcode:           b.Shortcode,
		Universe:            b.Universe,
		Begin:               b.Begin,
		End:                 b.End,
		NumAllocations:      len(b.Plan),
		TotalReturn:         b.Performance.TotalReturn(portfolio.NOFEE),
		TotalReturnWithFee:  b.Performance.TotalReturn(portfolio.WITHFEE),
		Cagr:                b.Performance.Cagr(portfolio.NOFEE),
		CagrWithFee:         b.Performance.Cagr(portfolio.WITHFEE),
		FinalBalance:        b.Performance.FinalBalance(portfolio.NOFEE),
		FinalBalanceWithFee: b.Performance.FinalBalance(portfolio.WITHFEE),
		ComputedOn:          b.Performance.ComputedOn,
	}
}

// Save persists the run record to the backtest_run table
func (b *Backtest) Save(ctx context.Context) error {
	subLog := log.With().Str("BacktestID", b.ID.String()).Str("Shortcode", b.Shortcode).Logger()

	params, err := json.Marshal(b.Params)
	if err != nil {
		subLog.Error().Err(err).Msg("could not serialize strategy params")
		return err
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not get database transaction")
		return err
	}

	summary := b.Summary()
	sql := `INSERT INTO backtest_run (id, shortcode, params, universe, begin_date, end_date, num_allocations, total_return, total_return_with_fee, cagr, cagr_with_fee, final_balance, final_balance_with_fee, computed_on) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = trx.Exec(ctx, sql, b.ID, b.Shortcode, params, b.Universe, b.Begin, b.End,
		summary.NumAllocations, summary.TotalReturn, summary.TotalReturnWithFee,
		summary.Cagr, summary.CagrWithFee, summary.FinalBalance,
		summary.FinalBalanceWithFee, summary.ComputedOn)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not insert backtest run")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return err
	}

	subLog.Info().Msg("saved backtest run")
	return nil
}

// Publish sends the run summary to the configured NATS results subject.
// A no-op when messaging is not configured.
func (b *Backtest) Publish() error {
	if !messenger.Enabled() {
		return nil
	}
	return messenger.PublishResult(b.Summary())
}
