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
	"fmt"
	"math"
	"time"

	"github.com/capweight/capsim/common"
	"github.com/capweight/capsim/dataframe"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// panelBlob is the wire form of a cached panel. JSON has no NaN so missing
// observations travel as null.
type panelBlob struct {
	Dates    []time.Time  `json:"dates"`
	ColNames []string     `json:"colNames"`
	Vals     [][]*float64 `json:"vals"`
}

func remotePanelKey(tickers []string, metric Metric, begin, end time.Time) string {
	return fmt.Sprintf("panel:%s:%d:%d", CacheKey(tickers, metric), begin.Unix(), end.Unix())
}

// remotePanelGet loads a panel from the shared cache; common.ErrCacheMiss
// when the key is unknown or the payload cannot be decoded
func remotePanelGet(tickers []string, metric Metric, begin, end time.Time) (*dataframe.DataFrame, error) {
	raw, err := common.CacheGet(remotePanelKey(tickers, metric, begin, end))
	if err != nil {
		return nil, err
	}

	var blob panelBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		log.Warn().Err(err).Msg("could not decode cached panel; treating as a miss")
		return nil, common.ErrCacheMiss
	}

	df := &dataframe.DataFrame{
		Dates:    blob.Dates,
		ColNames: blob.ColNames,
		Vals:     make([][]float64, len(blob.Vals)),
	}
	for colIdx, col := range blob.Vals {
		vals := make([]float64, len(col))
		for rowIdx, v := range col {
			if v == nil {
				vals[rowIdx] = math.NaN()
			} else {
				vals[rowIdx] = *v
			}
		}
		df.Vals[colIdx] = vals
	}
	return df, nil
}

// remotePanelSet stores the panel in the shared cache; failures are logged
// and otherwise ignored
func remotePanelSet(tickers []string, metric Metric, begin, end time.Time, df *dataframe.DataFrame) {
	blob := panelBlob{
		Dates:    df.Dates,
		ColNames: df.ColNames,
		Vals:     make([][]*float64, len(df.Vals)),
	}
	for colIdx, col := range df.Vals {
		vals := make([]*float64, len(col))
		for rowIdx := range col {
			if !math.IsNaN(col[rowIdx]) {
				vals[rowIdx] = &df.Vals[colIdx][rowIdx]
			}
		}
		blob.Vals[colIdx] = vals
	}

	raw, err := json.Marshal(blob)
	if err != nil {
		log.Warn().Err(err).Msg("could not encode panel for the shared cache")
		return
	}
	if err := common.CacheSet(remotePanelKey(tickers, metric, begin, end), raw); err != nil {
		log.Warn().Err(err).Msg("could not store panel in the shared cache")
	}
}
