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

package strategies_test

import (
	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/capweight/capsim/strategies"
)

var _ = Describe("Strategy registry", func() {
	BeforeEach(func() {
		strategies.InitializeStrategyMap()
	})

	It("registers the topcap strategy", func() {
		Expect(strategies.StrategyList).To(HaveLen(1))
		Expect(strategies.StrategyMap).To(HaveKey("topcap"))
	})

	It("loads the strategy config", func() {
		info := strategies.StrategyMap["topcap"]
		Expect(info.Name).To(Equal("Market Cap Weighted Top N"))
		Expect(info.Benchmark).To(Equal("SPY"))
		Expect(info.Arguments).To(HaveKey("numHoldings"))
		Expect(info.Arguments["numHoldings"].Default).To(Equal("50"))
		Expect(info.Arguments["numHoldings"].Typecode).To(Equal("number"))
	})

	It("loads the long description", func() {
		info := strategies.StrategyMap["topcap"]
		Expect(info.LongDescription).To(ContainSubstring("market capitalization"))
	})

	It("provides a working factory", func() {
		info := strategies.StrategyMap["topcap"]
		Expect(info.Factory).ToNot(BeNil())

		strat, err := info.Factory(map[string]json.RawMessage{
			"numHoldings": json.RawMessage("10"),
		})
		Expect(err).To(BeNil())
		Expect(strat).ToNot(BeNil())
	})

	It("is idempotent", func() {
		strategies.InitializeStrategyMap()
		strategies.InitializeStrategyMap()
		Expect(strategies.StrategyList).To(HaveLen(1))
	})
})
