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

package dataframe_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/capweight/capsim/common"
	"github.com/capweight/capsim/dataframe"
)

var _ = Describe("DataFrameMap", func() {
	var (
		dfMap dataframe.DataFrameMap
		tz    *time.Location
	)

	BeforeEach(func() {
		tz = common.GetTimezone()

		dfMap = dataframe.DataFrameMap{
			"MSFT": {
				Dates: []time.Time{
					time.Date(2021, 1, 4, 0, 0, 0, 0, tz),
					time.Date(2021, 1, 5, 0, 0, 0, 0, tz),
				},
				ColNames: []string{"MSFT"},
				Vals:     [][]float64{{1.0, 2.0}},
			},
			"AAPL": {
				Dates: []time.Time{
					time.Date(2021, 1, 5, 0, 0, 0, 0, tz),
					time.Date(2021, 1, 6, 0, 0, 0, 0, tz),
				},
				ColNames: []string{"AAPL"},
				Vals:     [][]float64{{3.0, 4.0}},
			},
		}
	})

	Context("when aligning members", func() {
		It("reindexes every member onto the union of dates", func() {
			aligned := dfMap.Align()
			Expect(aligned["MSFT"].Len()).To(Equal(3))
			Expect(aligned["AAPL"].Len()).To(Equal(3))

			Expect(math.IsNaN(aligned["MSFT"].Vals[0][2])).To(BeTrue())
			Expect(math.IsNaN(aligned["AAPL"].Vals[0][0])).To(BeTrue())
			Expect(aligned["AAPL"].Vals[0][1]).To(BeNumerically("==", 3.0))
		})
	})

	Context("when merging into a single dataframe", func() {
		It("orders columns by member name", func() {
			df := dfMap.Align().DataFrame()
			Expect(df.ColNames).To(Equal([]string{"AAPL", "MSFT"}))
			Expect(df.Len()).To(Equal(3))
		})

		It("keeps values attached to their member", func() {
			df := dfMap.Align().DataFrame()
			msft := df.ColIndex("MSFT")
			Expect(df.Vals[msft][0]).To(BeNumerically("==", 1.0))
			Expect(df.Vals[msft][1]).To(BeNumerically("==", 2.0))
			Expect(math.IsNaN(df.Vals[msft][2])).To(BeTrue())
		})
	})
})
