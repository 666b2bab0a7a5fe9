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
	"errors"
	"io/ioutil"

	"github.com/rs/zerolog/log"
	"github.com/vicanso/go-charts/v2"
)

var ErrNoMeasurements = errors.New("performance has no measurements")

// Chart renders both value series as a png line chart
func (perf *Performance) Chart() ([]byte, error) {
	if len(perf.Measurements) == 0 {
		return nil, ErrNoMeasurements
	}

	labels := make([]string, len(perf.Measurements))
	for idx, m := range perf.Measurements {
		labels[idx] = m.Time.Format("2006-01-02")
	}

	painter, err := charts.LineRender(
		[][]float64{perf.values(NOFEE), perf.values(WITHFEE)},
		charts.TitleTextOptionFunc("Portfolio Value"),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        labels,
			BoundaryGap: charts.FalseFlag(),
			SplitNumber: 10,
		}),
		charts.LegendOptionFunc(charts.LegendOption{
			Data: []string{"No Fee", "With Fee"},
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		log.Error().Err(err).Msg("could not render chart")
		return nil, err
	}

	return painter.Bytes()
}

// SaveChart writes the png chart to a file
func (perf *Performance) SaveChart(path string) error {
	img, err := perf.Chart()
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(path, img, 0644); err != nil {
		log.Error().Err(err).Str("FileName", path).Msg("could not write chart file")
		return err
	}
	return nil
}
