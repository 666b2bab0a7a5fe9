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
	"fmt"
	"io/ioutil"
	"math"
	"net/http"
	"time"

	"github.com/capweight/capsim/common"
	"github.com/capweight/capsim/dataframe"
	"github.com/capweight/capsim/observability/opentelemetry"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	yahooChartURL        = "https://query1.finance.yahoo.com/v8/finance/chart"
	yahooFundamentalsURL = "https://query1.finance.yahoo.com/ws/fundamentals-timeseries/v1/finance/timeseries"
)

// Yahoo retrieves daily closes from the v8 chart API and shares outstanding
// from the fundamentals-timeseries API
type Yahoo struct {
	chartURL        string
	fundamentalsURL string
}

type yahooChartResponse struct {
	Chart yahooChart `json:"chart"`
}

type yahooChart struct {
	Result []yahooChartResult `json:"result"`
	Error  *yahooAPIError     `json:"error"`
}

type yahooChartResult struct {
	Timestamp  []int64         `json:"timestamp"`
	Indicators yahooIndicators `json:"indicators"`
}

type yahooIndicators struct {
	Quote []yahooQuote `json:"quote"`
}

type yahooQuote struct {
	Close []*float64 `json:"close"`
}

type yahooTimeseriesResponse struct {
	Timeseries yahooTimeseries `json:"timeseries"`
}

type yahooTimeseries struct {
	Result []yahooTimeseriesResult `json:"result"`
	Error  *yahooAPIError          `json:"error"`
}

type yahooTimeseriesResult struct {
	Timestamp []int64    `json:"timestamp"`
	SharesOut []*float64 `json:"shares_out"`
}

type yahooAPIError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (apiErr *yahooAPIError) Error() string {
	return fmt.Sprintf("%s: %s", apiErr.Code, apiErr.Description)
}

// NewYahoo creates a yahoo provider; endpoints may be overridden with the
// yahoo.chart_url and yahoo.fundamentals_url settings
func NewYahoo() *Yahoo {
	chartURL := viper.GetString("yahoo.chart_url")
	if chartURL == "" {
		chartURL = yahooChartURL
	}
	fundamentalsURL := viper.GetString("yahoo.fundamentals_url")
	if fundamentalsURL == "" {
		fundamentalsURL = yahooFundamentalsURL
	}
	return &Yahoo{
		chartURL:        chartURL,
		fundamentalsURL: fundamentalsURL,
	}
}

func (yahoo *Yahoo) Name() string {
	return "yahoo"
}

// Securities is not supported; yahoo cannot enumerate a universe
func (yahoo *Yahoo) Securities(_ context.Context) ([]*Security, error) {
	return nil, ErrNotSupported
}

// GetMetric returns a single-column dataframe (column name = ticker) of the
// metric over [begin, end]. Market cap is computed as close x shares with
// shares forward- then back-filled onto the price dates.
func (yahoo *Yahoo) GetMetric(ctx context.Context, ticker string, metric Metric, begin, end time.Time) (*dataframe.DataFrame, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "yahoo.GetMetric")
	defer span.End()

	span.SetAttributes(
		attribute.KeyValue{
			Key:   "Ticker",
			Value: attribute.StringValue(ticker),
		},
		attribute.KeyValue{
			Key:   "Metric",
			Value: attribute.StringValue(string(metric)),
		},
	)

	switch metric {
	case MetricClose:
		return yahoo.fetchClose(ctx, ticker, begin, end)
	case MetricShares:
		return yahoo.fetchShares(ctx, ticker, begin, end)
	case MetricMarketCap:
		return yahoo.fetchMarketCap(ctx, ticker, begin, end)
	default:
		return nil, ErrUnsupportedMetric
	}
}

// FetchEOD downloads closes and shares for the ticker and returns a three
// column dataframe (close, shares_outstanding, market_cap) suitable for
// persisting to a store
func (yahoo *Yahoo) FetchEOD(ctx context.Context, ticker string, begin, end time.Time) (*dataframe.DataFrame, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "yahoo.FetchEOD")
	defer span.End()

	closes, err := yahoo.fetchClose(ctx, ticker, begin, end)
	if err != nil {
		return nil, err
	}
	shares, err := yahoo.fetchShares(ctx, ticker, begin, end)
	if err != nil {
		return nil, err
	}

	shares = shares.Reindex(closes.Dates).ForwardFill().BackwardFill()
	marketCap := closes.Mul(shares)

	return &dataframe.DataFrame{
		Dates:    closes.Dates,
		ColNames: []string{string(MetricClose), string(MetricShares), string(MetricMarketCap)},
		Vals:     [][]float64{closes.Vals[0], shares.Vals[0], marketCap.Vals[0]},
	}, nil
}

func (yahoo *Yahoo) fetchClose(ctx context.Context, ticker string, begin, end time.Time) (*dataframe.DataFrame, error) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "yahoo.fetchClose")
	defer span.End()

	subLog := log.With().Str("Ticker", ticker).Time("Begin", begin).Time("End", end).Logger()

	url := fmt.Sprintf("%s/%s?period1=%d&period2=%d&interval=1d", yahoo.chartURL, ticker, begin.Unix(), end.Unix())
	body, err := yahooRequest(span, subLog, url)
	if err != nil {
		return nil, err
	}

	chartResp := yahooChartResponse{}
	if err := json.Unmarshal(body, &chartResp); err != nil {
		span.RecordError(err)
		msg := "could not unmarshal json"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Bytes("Body", body).Msg(msg)
		return nil, err
	}

	if chartResp.Chart.Error != nil {
		err := chartResp.Chart.Error
		span.RecordError(err)
		msg := "yahoo chart api returned an error"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, err
	}

	if len(chartResp.Chart.Result) == 0 || len(chartResp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, ErrNotFound
	}

	result := chartResp.Chart.Result[0]
	return seriesFrame(ticker, result.Timestamp, result.Indicators.Quote[0].Close), nil
}

func (yahoo *Yahoo) fetchShares(ctx context.Context, ticker string, begin, end time.Time) (*dataframe.DataFrame, error) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "yahoo.fetchShares")
	defer span.End()

	subLog := log.With().Str("Ticker", ticker).Time("Begin", begin).Time("End", end).Logger()

	url := fmt.Sprintf("%s/%s?symbol=%s&type=shares_out&period1=%d&period2=%d", yahoo.fundamentalsURL, ticker, ticker, begin.Unix(), end.Unix())
	body, err := yahooRequest(span, subLog, url)
	if err != nil {
		return nil, err
	}

	seriesResp := yahooTimeseriesResponse{}
	if err := json.Unmarshal(body, &seriesResp); err != nil {
		span.RecordError(err)
		msg := "could not unmarshal json"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Bytes("Body", body).Msg(msg)
		return nil, err
	}

	if seriesResp.Timeseries.Error != nil {
		err := seriesResp.Timeseries.Error
		span.RecordError(err)
		msg := "yahoo timeseries api returned an error"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, err
	}

	if len(seriesResp.Timeseries.Result) == 0 {
		return nil, ErrNotFound
	}

	result := seriesResp.Timeseries.Result[0]
	return seriesFrame(ticker, result.Timestamp, result.SharesOut), nil
}

func (yahoo *Yahoo) fetchMarketCap(ctx context.Context, ticker string, begin, end time.Time) (*dataframe.DataFrame, error) {
	closes, err := yahoo.fetchClose(ctx, ticker, begin, end)
	if err != nil {
		return nil, err
	}
	shares, err := yahoo.fetchShares(ctx, ticker, begin, end)
	if err != nil {
		return nil, err
	}

	shares = shares.Reindex(closes.Dates).ForwardFill().BackwardFill()
	return closes.Mul(shares), nil
}

func yahooRequest(span trace.Span, subLog zerolog.Logger, url string) ([]byte, error) {
	span.SetAttributes(attribute.KeyValue{
		Key:   "Url",
		Value: attribute.StringValue(url),
	})

	resp, err := http.Get(url)
	if err != nil {
		span.RecordError(err)
		msg := "yahoo http request failed"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, err
	}

	if resp.StatusCode >= 400 {
		span.SetAttributes(attribute.KeyValue{
			Key:   "StatusCode",
			Value: attribute.IntValue(resp.StatusCode),
		})
		msg := "yahoo returned invalid response code"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Int("HTTPResponseStatusCode", resp.StatusCode).Msg(msg)
		return nil, fmt.Errorf("HTTP request returned invalid status code: %d", resp.StatusCode)
	}

	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		msg := "could not read yahoo response body"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, err
	}

	return body, nil
}

// seriesFrame converts parallel timestamp/value arrays into a single column
// dataframe. Timestamps are normalized to midnight exchange time; duplicate
// days keep the last observation; null values become NaN.
func seriesFrame(ticker string, timestamps []int64, vals []*float64) *dataframe.DataFrame {
	nyc := common.GetTimezone()
	df := &dataframe.DataFrame{
		Dates:    make([]time.Time, 0, len(timestamps)),
		ColNames: []string{ticker},
		Vals:     [][]float64{make([]float64, 0, len(timestamps))},
	}

	for idx, stamp := range timestamps {
		dt := time.Unix(stamp, 0).In(nyc)
		dt = time.Date(dt.Year(), dt.Month(), dt.Day(), 0, 0, 0, 0, nyc)

		val := math.NaN()
		if idx < len(vals) && vals[idx] != nil {
			val = *vals[idx]
		}

		if last := df.Len(); last > 0 && df.Dates[last-1].Equal(dt) {
			df.Vals[0][last-1] = val
			continue
		}

		df.Dates = append(df.Dates, dt)
		df.Vals[0] = append(df.Vals[0], val)
	}

	return df
}
