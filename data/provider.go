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
	"time"

	"github.com/capweight/capsim/dataframe"
	"github.com/rs/zerolog/log"
)

// Provider retrieves security metrics from a backing source (yahoo, an
// xlsx dataset, or the eod database)
type Provider interface {
	// Name identifies the provider in logs and run records
	Name() string

	// Securities lists every security the provider knows about. Providers
	// that cannot enumerate their universe return ErrNotSupported.
	Securities(ctx context.Context) ([]*Security, error)

	// GetMetric returns a single-column dataframe of the metric for the
	// ticker over [begin, end]
	GetMetric(ctx context.Context, ticker string, metric Metric, begin, end time.Time) (*dataframe.DataFrame, error)
}

type metricResult struct {
	Ticker string
	Data   *dataframe.DataFrame
	Err    error
}

// maxFetchWorkers caps how many metric downloads run at once
const maxFetchWorkers = 8

// fetchMetric downloads the metric for every ticker through a bounded pool
// of workers. Tickers that fail are logged and left out of the result map.
func fetchMetric(ctx context.Context, provider Provider, tickers []string, metric Metric, begin, end time.Time) dataframe.DataFrameMap {
	jobs := make(chan string)
	ch := make(chan metricResult)

	workers := maxFetchWorkers
	if len(tickers) < workers {
		workers = len(tickers)
	}
	for ii := 0; ii < workers; ii++ {
		go metricWorker(ctx, jobs, ch, provider, metric, begin, end)
	}

	go func() {
		for _, ticker := range tickers {
			jobs <- ticker
		}
		close(jobs)
	}()

	res := make(dataframe.DataFrameMap, len(tickers))
	for range tickers {
		v := <-ch
		if v.Err != nil {
			log.Warn().Err(v.Err).Str("Ticker", v.Ticker).Str("Metric", string(metric)).Msg("could not download metric for ticker")
			continue
		}
		res[v.Ticker] = v.Data
	}

	return res
}

func metricWorker(ctx context.Context, jobs <-chan string, result chan<- metricResult, provider Provider, metric Metric, begin, end time.Time) {
	for ticker := range jobs {
		df, err := provider.GetMetric(ctx, ticker, metric, begin, end)
		result <- metricResult{
			Ticker: ticker,
			Data:   df,
			Err:    err,
		}
	}
}
