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

package messenger

import (
	"errors"
	"time"

	"github.com/capweight/capsim/common"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// BacktestRequest asks a worker to run a backtest over the given universe.
// Zero-valued parameters fall back to the worker's configured defaults.
type BacktestRequest struct {
	RequestID    string   `json:"request_id"`
	Universe     []string `json:"universe"`
	Begin        string   `json:"begin"`
	End          string   `json:"end"`
	TopN         int      `json:"top_n"`
	InitialValue float64  `json:"initial_value"`
	AnnualFee    float64  `json:"annual_fee"`
	RequestTime  string   `json:"request_time"`
}

// NextBacktestRequest pulls a single backtest request off the durable
// consumer. Returns (nil, nil) when the queue is empty.
func NextBacktestRequest() (*nats.Msg, error) {
	if jetStream == nil {
		return nil, ErrNotConnected
	}

	sub, err := jetStream.PullSubscribe(viper.GetString("nats.requests_subject"), viper.GetString("nats.requests_consumer"))
	if err != nil {
		log.Error().Err(err).Msg("could not connect to durable consumer (note: make sure the consumer already exists)")
		return nil, err
	}

	msgs, err := sub.Fetch(1)
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			log.Debug().Msg("no backtest requests in queue")
			return nil, nil
		}
		log.Error().Err(err).Msg("could not fetch new messages")
		return nil, err
	}

	if len(msgs) == 0 {
		log.Debug().Msg("no backtest requests in queue")
		return nil, nil
	}

	return msgs[0], nil
}

// CreateBacktestRequest queues a backtest request for a worker. The request
// is stamped with an id and the current exchange time.
func CreateBacktestRequest(req *BacktestRequest) error {
	if jetStream == nil {
		return ErrNotConnected
	}

	nyc := common.GetTimezone()
	req.RequestID = uuid.New().String()
	req.RequestTime = time.Now().In(nyc).String()

	jsonReq, err := json.Marshal(req)
	if err != nil {
		log.Error().Err(err).Msg("could not serialize request to JSON")
		return err
	}

	if _, err := jetStream.Publish(viper.GetString("nats.requests_subject"), jsonReq); err != nil {
		log.Error().Err(err).Msg("could not publish a backtest request")
		return err
	}

	return nil
}

// PublishResult sends a completed run summary to the results subject
func PublishResult(summary interface{}) error {
	if jetStream == nil {
		return ErrNotConnected
	}

	jsonSummary, err := json.Marshal(summary)
	if err != nil {
		log.Error().Err(err).Msg("could not serialize run summary to JSON")
		return err
	}

	if _, err := jetStream.Publish(viper.GetString("nats.results_subject"), jsonSummary); err != nil {
		log.Error().Err(err).Msg("could not publish run summary")
		return err
	}

	return nil
}
