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

package portfolio

import (
	"encoding/csv"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
)

// WriteCSV streams the value series as csv: one row per date with both
// portfolio values and their day-over-day returns
func (perf *Performance) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	header := []string{"date", "portfolio_value_no_fee", "portfolio_value_with_fee", "daily_return_no_fee", "daily_return_with_fee"}
	if err := writer.Write(header); err != nil {
		return err
	}

	noFeeReturns := perf.DailyReturns(NOFEE)
	withFeeReturns := perf.DailyReturns(WITHFEE)
	for idx, m := range perf.Measurements {
		row := []string{
			m.Time.Format("2006-01-02"),
			strconv.FormatFloat(m.Value, 'f', -1, 64),
			strconv.FormatFloat(m.ValueWithFee, 'f', -1, 64),
			strconv.FormatFloat(noFeeReturns[idx], 'f', -1, 64),
			strconv.FormatFloat(withFeeReturns[idx], 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// SaveCSV writes the value series to a csv file
func (perf *Performance) SaveCSV(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		log.Error().Err(err).Str("FileName", path).Msg("could not create csv file")
		return err
	}
	defer fh.Close()

	if err := perf.WriteCSV(fh); err != nil {
		log.Error().Err(err).Str("FileName", path).Msg("could not write csv file")
		return err
	}
	return nil
}

// JSON encodes the performance document
func (perf *Performance) JSON() ([]byte, error) {
	return json.MarshalIndent(perf, "", "  ")
}

// SaveJSON writes the performance document to a json file
func (perf *Performance) SaveJSON(path string) error {
	data, err := perf.JSON()
	if err != nil {
		log.Error().Err(err).Msg("could not serialize performance")
		return err
	}
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		log.Error().Err(err).Str("FileName", path).Msg("could not write json file")
		return err
	}
	return nil
}

// Summary renders an ascii table of the headline statistics for both fee
// regimes
func (perf *Performance) Summary() string {
	s := &strings.Builder{}

	table := tablewriter.NewWriter(s)
	table.SetHeader([]string{"Metric", "No Fee", "With Fee"})
	table.SetBorder(false)

	table.Append([]string{"Total Return", formatPercent(perf.TotalReturn(NOFEE)), formatPercent(perf.TotalReturn(WITHFEE))})
	table.Append([]string{"CAGR", formatPercent(perf.Cagr(NOFEE)), formatPercent(perf.Cagr(WITHFEE))})
	table.Append([]string{"Std Dev", formatPercent(perf.StdDev(NOFEE)), formatPercent(perf.StdDev(WITHFEE))})
	table.Append([]string{"Max Draw Down", formatPercent(perf.MaxDrawDown(NOFEE)), formatPercent(perf.MaxDrawDown(WITHFEE))})
	table.Append([]string{"Final Balance", formatCurrency(perf.FinalBalance(NOFEE)), formatCurrency(perf.FinalBalance(WITHFEE))})

	table.Render()
	return s.String()
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func formatCurrency(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}
