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
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/capweight/capsim/common"
	"github.com/capweight/capsim/dataframe"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx/v3"
)

const (
	priceSheetSuffix     = "_prices"
	sharesSheetSuffix    = "_shares"
	marketCapSheetSuffix = "_market_cap"

	closeHeader     = "Close"
	sharesHeader    = "Shares_Outstanding"
	marketCapHeader = "Market_Cap"

	sheetDateFormat = "2006-01-02"
)

// XlsxStore persists a dataset as an Excel workbook with three sheets per
// ticker: {TICKER}_prices, {TICKER}_shares and {TICKER}_market_cap. It
// implements Provider so saved workbooks can back a backtest directly.
type XlsxStore struct {
	file *xlsx.File
}

// NewXlsxStore creates an empty workbook
func NewXlsxStore() *XlsxStore {
	return &XlsxStore{
		file: xlsx.NewFile(),
	}
}

// OpenXlsxStore loads a workbook from disk
func OpenXlsxStore(path string) (*XlsxStore, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		log.Error().Err(err).Str("FileName", path).Msg("could not open xlsx dataset")
		return nil, err
	}
	return &XlsxStore{file: file}, nil
}

// OpenXlsxBinary loads a workbook from an in-memory buffer
func OpenXlsxBinary(data []byte) (*XlsxStore, error) {
	file, err := xlsx.OpenBinary(data)
	if err != nil {
		log.Error().Err(err).Msg("could not parse xlsx dataset")
		return nil, err
	}
	return &XlsxStore{file: file}, nil
}

func (store *XlsxStore) Name() string {
	return "xlsx"
}

// AddSecurity writes the three sheets for the ticker from an eod dataframe
// with close, shares_outstanding and market_cap columns. NaN values become
// blank cells.
func (store *XlsxStore) AddSecurity(ticker string, eod *dataframe.DataFrame) error {
	ticker = strings.ToUpper(ticker)

	sheets := []struct {
		suffix string
		header string
		metric Metric
	}{
		{suffix: priceSheetSuffix, header: closeHeader, metric: MetricClose},
		{suffix: sharesSheetSuffix, header: sharesHeader, metric: MetricShares},
		{suffix: marketCapSheetSuffix, header: marketCapHeader, metric: MetricMarketCap},
	}

	for _, sheetSpec := range sheets {
		colIdx := eod.ColIndex(string(sheetSpec.metric))
		if colIdx == -1 {
			log.Error().Str("Ticker", ticker).Str("Metric", string(sheetSpec.metric)).Msg("eod dataframe missing metric column")
			return ErrUnsupportedMetric
		}

		sheet, err := store.file.AddSheet(fmt.Sprintf("%s%s", ticker, sheetSpec.suffix))
		if err != nil {
			log.Error().Err(err).Str("Ticker", ticker).Msg("could not add sheet to workbook")
			return err
		}

		header := sheet.AddRow()
		header.AddCell().SetString("Date")
		header.AddCell().SetString(sheetSpec.header)

		for rowIdx, dt := range eod.Dates {
			row := sheet.AddRow()
			row.AddCell().SetString(dt.Format(sheetDateFormat))
			val := eod.Vals[colIdx][rowIdx]
			if math.IsNaN(val) {
				row.AddCell().SetString("")
			} else {
				row.AddCell().SetFloat(val)
			}
		}
	}

	return nil
}

// Save writes the workbook to disk
func (store *XlsxStore) Save(path string) error {
	return store.file.Save(path)
}

// Write streams the workbook to w
func (store *XlsxStore) Write(w io.Writer) error {
	return store.file.Write(w)
}

// Securities lists every ticker with a market cap sheet in the workbook
func (store *XlsxStore) Securities(_ context.Context) ([]*Security, error) {
	securities := make([]*Security, 0, len(store.file.Sheets))
	for _, sheet := range store.file.Sheets {
		if strings.HasSuffix(sheet.Name, marketCapSheetSuffix) {
			ticker := strings.TrimSuffix(sheet.Name, marketCapSheetSuffix)
			securities = append(securities, &Security{
				Ticker: ticker,
				Name:   ticker,
			})
		}
	}

	sort.Slice(securities, func(i, j int) bool {
		return securities[i].Ticker < securities[j].Ticker
	})
	return securities, nil
}

// GetMetric reads the metric sheet for the ticker and returns a single
// column dataframe (column name = ticker) trimmed to [begin, end]
func (store *XlsxStore) GetMetric(_ context.Context, ticker string, metric Metric, begin, end time.Time) (*dataframe.DataFrame, error) {
	ticker = strings.ToUpper(ticker)

	var sheetName string
	var header string
	switch metric {
	case MetricClose:
		sheetName = ticker + priceSheetSuffix
		header = closeHeader
	case MetricShares:
		sheetName = ticker + sharesSheetSuffix
		header = sharesHeader
	case MetricMarketCap:
		sheetName = ticker + marketCapSheetSuffix
		header = marketCapHeader
	default:
		return nil, ErrUnsupportedMetric
	}

	sheet, ok := store.file.Sheet[sheetName]
	if !ok {
		return nil, ErrNotFound
	}

	rows, err := readSheet(sheet, header)
	if err != nil {
		log.Error().Err(err).Str("SheetName", sheetName).Msg("could not read sheet")
		return nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].date.Before(rows[j].date)
	})

	df := &dataframe.DataFrame{
		Dates:    make([]time.Time, 0, len(rows)),
		ColNames: []string{ticker},
		Vals:     [][]float64{make([]float64, 0, len(rows))},
	}
	for _, row := range rows {
		if last := df.Len(); last > 0 && df.Dates[last-1].Equal(row.date) {
			df.Vals[0][last-1] = row.val
			continue
		}
		df.Dates = append(df.Dates, row.date)
		df.Vals[0] = append(df.Vals[0], row.val)
	}

	return df.Trim(begin, end), nil
}

type sheetRow struct {
	date time.Time
	val  float64
}

// readSheet extracts (date, value) pairs from a sheet. The first column is
// the date; the value column is located by its header so workbooks with
// extra columns still load.
func readSheet(sheet *xlsx.Sheet, header string) ([]sheetRow, error) {
	nyc := common.GetTimezone()
	rows := make([]sheetRow, 0, sheet.MaxRow)

	valColIdx := -1
	rowIdx := 0
	err := sheet.ForEachRow(func(row *xlsx.Row) error {
		defer func() { rowIdx++ }()

		if rowIdx == 0 {
			for cellIdx := 0; cellIdx < sheet.MaxCol; cellIdx++ {
				if row.GetCell(cellIdx).String() == header {
					valColIdx = cellIdx
					break
				}
			}
			if valColIdx == -1 {
				return fmt.Errorf("sheet %s has no %s column", sheet.Name, header)
			}
			return nil
		}

		dateCell := row.GetCell(0)
		dt, err := parseSheetDate(dateCell, nyc)
		if err != nil {
			return err
		}

		val := math.NaN()
		if parsed, err := row.GetCell(valColIdx).Float(); err == nil {
			val = parsed
		}

		rows = append(rows, sheetRow{date: dt, val: val})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rows, nil
}

// parseSheetDate handles both string dates and native excel datetime cells
func parseSheetDate(cell *xlsx.Cell, tz *time.Location) (time.Time, error) {
	raw := strings.TrimSpace(cell.String())
	if len(raw) >= len(sheetDateFormat) {
		if dt, err := time.ParseInLocation(sheetDateFormat, raw[:len(sheetDateFormat)], tz); err == nil {
			return dt, nil
		}
	}

	dt, err := cell.GetTime(false)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not parse date cell %q: %w", raw, err)
	}
	return time.Date(dt.Year(), dt.Month(), dt.Day(), 0, 0, 0, 0, tz), nil
}
