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

import "errors"

var (
	ErrBeginAfterEnd     = errors.New("interval begin after end")
	ErrEmptyUniverse     = errors.New("universe contains no securities")
	ErrInvalidTimeRange  = errors.New("invalid time range")
	ErrNoMarketCapData   = errors.New("no market capitalization data available for universe")
	ErrNotFound          = errors.New("security not found")
	ErrNotSupported      = errors.New("operation not supported by provider")
	ErrRangeDoesNotExist = errors.New("requested range does not exist in cache")
	ErrUnsupportedMetric = errors.New("unsupported metric")
)
