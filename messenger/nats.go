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

// Package messenger publishes completed backtest runs and consumes queued
// backtest requests over NATS JetStream. Messaging is optional; when
// nats.server is unset every operation is a no-op and the rest of the
// system runs standalone.
package messenger

import (
	"errors"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var ErrNotConnected = errors.New("not connected to NATS")

var natsConnection *nats.Conn
var jetStream nats.JetStreamContext

// Initialize connects to the NATS server named by the nats.server setting
// and creates a jetstream context. Returns nil without connecting when no
// server is configured.
func Initialize() error {
	url := viper.GetString("nats.server")
	if url == "" {
		log.Info().Msg("nats.server not set; messaging disabled")
		return nil
	}

	opts := []nats.Option{}
	if credentialsFile := viper.GetString("nats.credentials"); credentialsFile != "" {
		opts = append(opts, nats.UserCredentials(credentialsFile))
	}

	log.Info().Str("NATSServer", url).Msg("connecting to NATS server")

	var err error
	if natsConnection, err = nats.Connect(url, opts...); err != nil {
		log.Error().Err(err).Msg("could not connect to NATS server")
		return err
	}

	jetStream, err = natsConnection.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		log.Error().Err(err).Msg("could not create jetstream context")
		return err
	}

	return nil
}

// Enabled reports whether a jetstream connection has been established
func Enabled() bool {
	return jetStream != nil
}

// Shutdown drains the connection
func Shutdown() {
	if natsConnection == nil {
		return
	}
	if err := natsConnection.Drain(); err != nil {
		log.Warn().Err(err).Msg("could not drain NATS connection")
	}
	natsConnection = nil
	jetStream = nil
}
