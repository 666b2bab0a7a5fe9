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

package strategies

import (
	"embed"
	"fmt"
	"io/ioutil"

	"github.com/capweight/capsim/strategies/strategy"
	"github.com/capweight/capsim/strategies/topcap"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

//go:embed **/*.md **/*.toml
var resources embed.FS

// StrategyList List of all strategies
var StrategyList = []strategy.Info{}

// StrategyMap Map of strategies keyed by shortcode
var StrategyMap = make(map[string]*strategy.Info)

// InitializeStrategyMap configure the strategy map
func InitializeStrategyMap() {
	StrategyList = []strategy.Info{}
	StrategyMap = make(map[string]*strategy.Info)

	Register("topcap", topcap.New)
}

// Register loads the strategy package's description.md and strategy.toml
// from the embedded resources and adds the strategy to the registry
func Register(strategyPkg string, factory strategy.Factory) {
	fn := fmt.Sprintf("%s/description.md", strategyPkg)
	subLog := log.With().Str("File", fn).Logger()

	file, err := resources.Open(fn)
	if err != nil {
		subLog.Error().Err(err).Msg("could not open strategy description")
		return
	}
	doc, err := ioutil.ReadAll(file)
	file.Close()
	if err != nil {
		subLog.Error().Err(err).Msg("could not read strategy description")
		return
	}
	longDescription := string(doc)

	fn = fmt.Sprintf("%s/strategy.toml", strategyPkg)
	subLog = log.With().Str("File", fn).Logger()

	file, err = resources.Open(fn)
	if err != nil {
		subLog.Error().Err(err).Msg("could not open strategy config")
		return
	}
	doc, err = ioutil.ReadAll(file)
	file.Close()
	if err != nil {
		subLog.Error().Err(err).Msg("could not read strategy config")
		return
	}

	var strat strategy.Info
	if err := toml.Unmarshal(doc, &strat); err != nil {
		subLog.Error().Err(err).Msg("could not parse strategy config")
		return
	}

	strat.LongDescription = longDescription
	strat.Factory = factory

	StrategyList = append(StrategyList, strat)
	StrategyMap[strat.Shortcode] = &strat
}
