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
	"context"
	"sort"
	"strings"
	"time"

	"github.com/capweight/capsim/dataframe"
	"github.com/capweight/capsim/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// Manager assembles metric panels from a provider and caches them by
// request
type Manager struct {
	provider Provider
	cache    *MetricCache
}

// NewManager creates a manager backed by the given provider. The metric
// cache is bounded by the cache.local_size setting.
func NewManager(provider Provider) *Manager {
	size := viper.GetInt("cache.local_size")
	if size <= 0 {
		size = 1024
	}
	return &Manager{
		provider: provider,
		cache:    NewMetricCache(size),
	}
}

// resolveSource applies the source defaulting rule: an empty
// backtest.source selects xlsx when backtest.dataset is set and the
// database otherwise
func resolveSource() string {
	source := viper.GetString("backtest.source")
	if source == "" {
		if viper.GetString("backtest.dataset") != "" {
			source = "xlsx"
		} else {
			source = "database"
		}
	}
	return source
}

// SourceRequiresDatabase reports whether the configured backtest source
// resolves to the database provider. Commands use this to connect the pool
// before the first panel request needs it.
func SourceRequiresDatabase() bool {
	return resolveSource() == "database"
}

// NewManagerFromConfig creates a manager with the provider named by the
// backtest.source setting. An empty source selects xlsx when
// backtest.dataset is set and the database otherwise.
func NewManagerFromConfig() (*Manager, error) {
	source := resolveSource()
	dataset := viper.GetString("backtest.dataset")

	switch source {
	case "xlsx":
		store, err := OpenXlsxStore(dataset)
		if err != nil {
			return nil, err
		}
		return NewManager(store), nil
	case "database":
		return NewManager(NewPgDb()), nil
	default:
		log.Error().Str("Source", source).Msg("unknown data source")
		return nil, ErrNotSupported
	}
}

// ProviderName identifies the backing provider in logs and run records
func (manager *Manager) ProviderName() string {
	return manager.provider.Name()
}

// Securities lists the universe known to the underlying provider
func (manager *Manager) Securities(ctx context.Context) ([]*Security, error) {
	return manager.provider.Securities(ctx)
}

// ClearCache drops all cached panels; callers do this after new data is
// loaded into the backing store
func (manager *Manager) ClearCache() {
	manager.cache.Purge()
}

// GetPanel returns a metric panel with one column per ticker over
// [begin, end]. Member series are aligned onto the sorted union of their
// date indexes; dates a ticker has no observation for are NaN. Columns are
// ordered alphabetically. Tickers that fail to load are omitted.
func (manager *Manager) GetPanel(ctx context.Context, tickers []string, metric Metric, begin, end time.Time) (*dataframe.DataFrame, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "manager.GetPanel")
	defer span.End()

	tickers = normalizeTickers(tickers)
	subLog := log.With().Int("NumTickers", len(tickers)).Str("Metric", string(metric)).Time("Begin", begin).Time("End", end).Logger()

	if len(tickers) == 0 {
		subLog.Error().Stack().Msg("no tickers requested")
		return nil, ErrEmptyUniverse
	}
	if end.Before(begin) {
		subLog.Error().Stack().Msg("end before begin in call to GetPanel")
		return nil, ErrInvalidTimeRange
	}

	if df, err := manager.cache.Get(tickers, metric, begin, end); err == nil {
		subLog.Debug().Msg("panel satisfied from cache")
		return df, nil
	}

	if df, err := remotePanelGet(tickers, metric, begin, end); err == nil {
		subLog.Debug().Msg("panel satisfied from shared cache")
		if err := manager.cache.Set(tickers, metric, begin, end, df); err != nil {
			subLog.Warn().Err(err).Msg("could not cache panel")
		}
		return df, nil
	}

	dfMap := fetchMetric(ctx, manager.provider, tickers, metric, begin, end)
	if len(dfMap) == 0 {
		span.SetStatus(codes.Error, "no data for any requested ticker")
		subLog.Warn().Msg("no data available for any requested ticker")
		return &dataframe.DataFrame{
			Dates:    []time.Time{},
			ColNames: []string{},
			Vals:     [][]float64{},
		}, nil
	}

	panel := dfMap.Align().DataFrame().Trim(begin, end)

	if err := manager.cache.Set(tickers, metric, begin, end, panel); err != nil {
		subLog.Warn().Err(err).Msg("could not cache panel")
	}
	remotePanelSet(tickers, metric, begin, end, panel)

	return panel, nil
}

// Panels builds the market cap and daily return panels for the tickers over
// [begin, end]. Both panels share the market cap date index. Returns are
// computed from price changes when any price data exists and approximated
// from market cap changes otherwise. The last observation is carried forward
// across gaps, so a gap day is a 0% return and the day trading resumes
// carries the full move against the last valid price; leading holes become
// 0. The market cap panel keeps NaN so rebalances can tell missing data
// apart from a real value.
func (manager *Manager) Panels(ctx context.Context, tickers []string, begin, end time.Time) (*dataframe.DataFrame, *dataframe.DataFrame, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "manager.Panels")
	defer span.End()

	marketCap, err := manager.GetPanel(ctx, tickers, MetricMarketCap, begin, end)
	if err != nil {
		return nil, nil, err
	}
	if !marketCap.HasData() {
		span.SetStatus(codes.Error, ErrNoMarketCapData.Error())
		log.Error().Stack().Msg("no market cap data available for any ticker in the universe")
		return nil, nil, ErrNoMarketCapData
	}

	prices, err := manager.GetPanel(ctx, tickers, MetricClose, begin, end)
	if err != nil {
		log.Warn().Err(err).Msg("could not load prices; approximating returns from market cap changes")
		prices = nil
	}

	var returns *dataframe.DataFrame
	if prices != nil && prices.HasData() {
		returns = prices.Reindex(marketCap.Dates).ForwardFill().PctChange().FillNA(0)
	} else {
		log.Info().Msg("no price data found; approximating returns from market cap changes")
		returns = marketCap.ForwardFill().PctChange().FillNA(0)
	}

	return marketCap, returns, nil
}

// normalizeTickers upper-cases, trims, de-duplicates and sorts the
// requested tickers; panel column order follows this ordering
func normalizeTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	normalized := make([]string, 0, len(tickers))
	for _, ticker := range tickers {
		ticker = strings.ToUpper(strings.TrimSpace(ticker))
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true
		normalized = append(normalized, ticker)
	}
	sort.Strings(normalized)
	return normalized
}
