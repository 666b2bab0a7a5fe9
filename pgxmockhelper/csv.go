// Copyright 2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pgxmockhelper

import (
	"io/ioutil"
	"strconv"
	"strings"
	"time"

	"github.com/pashagolub/pgxmock"
	"github.com/rs/zerolog/log"
)

type CSVRows struct {
	rows    [][]any
	header  []string
	dateCol int
}

// NewCSVRows loads a csv file into a set of rows suitable for returning from
// a mocked database query. typeMap gives the conversion to apply per column:
// "date" (2006-01-02), "float64", or "nullable_float64" where an empty cell
// becomes a NULL. Columns not listed stay strings.
func NewCSVRows(csvFn string, typeMap map[string]string) *CSVRows {
	subLog := log.With().Str("CsvFn", csvFn).Logger()

	rows := &CSVRows{
		dateCol: -1,
		rows:    make([][]any, 0),
	}
	rawData, err := ioutil.ReadFile(csvFn)
	if err != nil {
		subLog.Panic().Err(err).Msg("could not read file")
	}

	// break raw data into an array of lines
	lines := strings.Split(string(rawData), "\n")

	// sanity checks:
	// - array length is at least 3 (header + content + trailing newline)
	// - make sure last line ends in newline
	if len(lines) < 2 {
		subLog.Panic().Int("NumLines", len(lines)).Msg("input file does not have enough lines, need at least 2 (header + trailing new line)")
	}
	if lines[len(lines)-1] != "" {
		subLog.Panic().Msg("input file is missing a trailing new line")
	}

	// parse header
	headerRaw := lines[0]
	lines = lines[1 : len(lines)-1] // discard first and last rows
	rows.header = strings.Split(headerRaw, ",")

	// parse each line and create a row
	for _, ll := range lines {
		cols := make([]any, len(rows.header))
		parts := strings.Split(ll, ",")
		for idx, val := range parts {
			colName := rows.header[idx]
			if typeConv, ok := typeMap[colName]; ok {
				switch typeConv {
				case "date":
					parsed, err := time.Parse("2006-01-02", val)
					if err != nil {
						subLog.Panic().Err(err).Str("Val", val).Msg("could not convert val to datetime of format 2006-01-02")
					}
					cols[idx] = parsed
					rows.dateCol = idx
				case "float64":
					parsed, err := strconv.ParseFloat(val, 64)
					if err != nil {
						subLog.Panic().Err(err).Str("Val", val).Msg("could not convert val to float64")
					}
					cols[idx] = parsed
				case "nullable_float64":
					if val == "" {
						cols[idx] = nil
						continue
					}
					parsed, err := strconv.ParseFloat(val, 64)
					if err != nil {
						subLog.Panic().Err(err).Str("Val", val).Msg("could not convert val to float64")
					}
					cols[idx] = &parsed
				default:
					// no type conversion specified - use as is
					cols[idx] = val
				}
			} else {
				cols[idx] = val
			}
		}
		rows.rows = append(rows.rows, cols)
	}

	return rows
}

// Between keeps only rows whose date column falls in [a, b]. Bounds are
// compared by calendar day so the caller's timezone does not matter.
func (csvRows *CSVRows) Between(a time.Time, b time.Time) *CSVRows {
	newRows := make([][]any, 0, len(csvRows.rows))
	if len(csvRows.rows) == 0 {
		return csvRows
	}
	if csvRows.dateCol == -1 {
		log.Panic().Time("a", a).Time("b", b).Msg("no date column found")
	}
	lower := dayOf(a)
	upper := dayOf(b)
	for _, row := range csvRows.rows {
		t := dayOf(row[csvRows.dateCol].(time.Time))
		if (t.Before(upper) || t.Equal(upper)) && (t.After(lower) || t.Equal(lower)) {
			newRows = append(newRows, row)
		}
	}
	csvRows.rows = newRows
	return csvRows
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Filter keeps only rows whose column equals val; the column must be an
// unconverted string column
func (csvRows *CSVRows) Filter(column string, val string) *CSVRows {
	colIdx := csvRows.colIndex(column)
	if colIdx == -1 {
		log.Panic().Str("Column", column).Msg("no such column")
	}
	newRows := make([][]any, 0, len(csvRows.rows))
	for _, row := range csvRows.rows {
		if cell, ok := row[colIdx].(string); ok && cell == val {
			newRows = append(newRows, row)
		}
	}
	csvRows.rows = newRows
	return csvRows
}

// Columns projects the row set down to the named columns, in order
func (csvRows *CSVRows) Columns(names ...string) *CSVRows {
	indexes := make([]int, len(names))
	for idx, name := range names {
		colIdx := csvRows.colIndex(name)
		if colIdx == -1 {
			log.Panic().Str("Column", name).Msg("no such column")
		}
		indexes[idx] = colIdx
	}

	newRows := make([][]any, 0, len(csvRows.rows))
	for _, row := range csvRows.rows {
		newRow := make([]any, len(indexes))
		for idx, colIdx := range indexes {
			newRow[idx] = row[colIdx]
		}
		newRows = append(newRows, newRow)
	}

	csvRows.rows = newRows
	dateCol := -1
	for idx, colIdx := range indexes {
		if colIdx == csvRows.dateCol {
			dateCol = idx
		}
	}
	csvRows.dateCol = dateCol
	csvRows.header = names
	return csvRows
}

func (csvRows *CSVRows) Rows() *pgxmock.Rows {
	r := pgxmock.NewRows(csvRows.header)
	for _, row := range csvRows.rows {
		r.AddRow(row...)
	}
	return r
}

func (csvRows *CSVRows) colIndex(name string) int {
	for idx, col := range csvRows.header {
		if col == name {
			return idx
		}
	}
	return -1
}

// MockSecuritiesQuery sets up expectations for a ticker listing
func MockSecuritiesQuery(db pgxmock.PgxConnIface, tickers []string) {
	rows := pgxmock.NewRows([]string{"ticker"})
	for _, ticker := range tickers {
		rows.AddRow(ticker)
	}
	db.ExpectBegin()
	db.ExpectQuery("DISTINCT ticker").WillReturnRows(rows)
	db.ExpectCommit()
}

// MockMetricQuery sets up expectations for a single ticker metric load from
// the given csv file; column is the eod table column the query selects
func MockMetricQuery(db pgxmock.PgxConnIface, fn string, ticker string, column string, begin, end time.Time) {
	db.ExpectBegin()
	db.ExpectQuery("event_date").WillReturnRows(
		NewCSVRows(fn, map[string]string{
			"event_date": "date",
			column:       "nullable_float64",
		}).Filter("ticker", ticker).Between(begin, end).Columns("event_date", column).Rows())
	db.ExpectCommit()
}
