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
	"math"
	"strings"
	"time"

	"github.com/capweight/capsim/common"
	"github.com/capweight/capsim/data/database"
	"github.com/capweight/capsim/dataframe"
	"github.com/capweight/capsim/observability/opentelemetry"
	"github.com/jackc/pgsql"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// PgDb loads and stores EOD metrics in the eod database table
type PgDb struct {
}

// NewPgDb creates a new database provider
func NewPgDb() *PgDb {
	return &PgDb{}
}

func (p *PgDb) Name() string {
	return "database"
}

// Securities lists every ticker present in the eod table
func (p *PgDb) Securities(ctx context.Context) ([]*Security, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "pgdb.Securities")
	defer span.End()

	trx, err := database.Trx(ctx)
	if err != nil {
		span.RecordError(err)
		msg := "could not get database transaction"
		span.SetStatus(codes.Error, msg)
		log.Warn().Stack().Err(err).Msg(msg)
		return nil, err
	}

	stmt := &pgsql.SelectStatement{}
	stmt.Select("DISTINCT ticker")
	stmt.From(pgx.Identifier{"eod"}.Sanitize())
	stmt.Order("ticker")
	sql, args := pgsql.Build(stmt)

	rows, err := trx.Query(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		msg := "could not query tickers"
		span.SetStatus(codes.Error, msg)
		log.Warn().Stack().Err(err).Str("SQL", sql).Msg(msg)
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	securities := make([]*Security, 0, 100)
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan ticker")
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		securities = append(securities, &Security{
			Ticker: ticker,
			Name:   ticker,
		})
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}

	return securities, nil
}

// GetMetric loads a single-column dataframe (column name = ticker) of the
// metric over [begin, end] from the eod table. NULL values become NaN.
func (p *PgDb) GetMetric(ctx context.Context, ticker string, metric Metric, begin, end time.Time) (*dataframe.DataFrame, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "pgdb.GetMetric")
	defer span.End()

	ticker = strings.ToUpper(ticker)
	subLog := log.With().Str("Ticker", ticker).Str("Metric", string(metric)).Time("Begin", begin).Time("End", end).Logger()
	tz := common.GetTimezone()

	if end.Before(begin) {
		subLog.Warn().Stack().Msg("end before begin in call to GetMetric")
		return nil, ErrInvalidTimeRange
	}

	column, err := metricColumn(metric)
	if err != nil {
		span.SetStatus(codes.Error, "un-supported metric")
		subLog.Error().Stack().Msg("un-supported metric requested")
		return nil, err
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		span.RecordError(err)
		msg := "could not get database transaction"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Stack().Err(err).Msg(msg)
		return nil, err
	}

	stmt := &pgsql.SelectStatement{}
	stmt.Select("event_date")
	stmt.Select(pgx.Identifier{column}.Sanitize())
	stmt.From(pgx.Identifier{"eod"}.Sanitize())
	stmt.Where("ticker = ?", ticker)
	stmt.Where("event_date >= ?", begin)
	stmt.Where("event_date <= ?", end)
	stmt.Order("event_date")
	sql, args := pgsql.Build(stmt)

	rows, err := trx.Query(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		msg := "eod query failed"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Stack().Err(err).Str("SQL", sql).Msg(msg)
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	df := &dataframe.DataFrame{
		Dates:    make([]time.Time, 0, 252),
		ColNames: []string{ticker},
		Vals:     [][]float64{make([]float64, 0, 252)},
	}

	for rows.Next() {
		var eventDate time.Time
		var val *float64
		if err := rows.Scan(&eventDate, &val); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not scan eod row")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}

		parsed := math.NaN()
		if val != nil {
			parsed = *val
		}

		df.Dates = append(df.Dates, time.Date(eventDate.Year(), eventDate.Month(), eventDate.Day(), 0, 0, 0, 0, tz))
		df.Vals[0] = append(df.Vals[0], parsed)
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not commit transaction")
	}

	return df, nil
}

// SaveEOD upserts an eod dataframe (close, shares_outstanding, market_cap
// columns) for the ticker in a single transaction. NaN values are stored as
// NULL.
func (p *PgDb) SaveEOD(ctx context.Context, ticker string, eod *dataframe.DataFrame) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "pgdb.SaveEOD")
	defer span.End()

	ticker = strings.ToUpper(ticker)
	subLog := log.With().Str("Ticker", ticker).Int("NumRows", eod.Len()).Logger()

	closeIdx := eod.ColIndex(string(MetricClose))
	sharesIdx := eod.ColIndex(string(MetricShares))
	marketCapIdx := eod.ColIndex(string(MetricMarketCap))
	if closeIdx == -1 || sharesIdx == -1 || marketCapIdx == -1 {
		subLog.Error().Stack().Msg("eod dataframe missing required columns")
		return ErrUnsupportedMetric
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		span.RecordError(err)
		msg := "could not get database transaction"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Stack().Err(err).Msg(msg)
		return err
	}

	sql := `INSERT INTO eod (ticker, event_date, close, shares_outstanding, market_cap) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (ticker, event_date) DO UPDATE SET close = EXCLUDED.close, shares_outstanding = EXCLUDED.shares_outstanding, market_cap = EXCLUDED.market_cap`
	for rowIdx, dt := range eod.Dates {
		_, err := trx.Exec(ctx, sql, ticker, dt,
			nullableFloat(eod.Vals[closeIdx][rowIdx]),
			nullableFloat(eod.Vals[sharesIdx][rowIdx]),
			nullableFloat(eod.Vals[marketCapIdx][rowIdx]))
		if err != nil {
			span.RecordError(err)
			msg := "could not upsert eod row"
			span.SetStatus(codes.Error, msg)
			subLog.Error().Stack().Err(err).Time("EventDate", dt).Msg(msg)
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return err
		}
	}

	if err := trx.Commit(ctx); err != nil {
		span.RecordError(err)
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return err
	}

	subLog.Info().Msg("saved eod metrics")
	return nil
}

func metricColumn(metric Metric) (string, error) {
	switch metric {
	case MetricClose:
		return "close", nil
	case MetricShares:
		return "shares_outstanding", nil
	case MetricMarketCap:
		return "market_cap", nil
	default:
		return "", ErrUnsupportedMetric
	}
}

func nullableFloat(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
