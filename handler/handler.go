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

// Package handler implements the HTTP API endpoints
package handler

import (
	"time"

	"github.com/capweight/capsim/data"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

var dataManager *data.Manager

// SetManager installs the data manager used by the API handlers; serve
// calls this once at startup
func SetManager(manager *data.Manager) {
	dataManager = manager
}

type pingResponse struct {
	Status  string `json:"status" example:"success"`
	Message string `json:"message" example:"API is alive"`
	Time    string `json:"time" example:"2022-06-19T08:09:10.115924-05:00"`
}

// Ping reports API liveness
func Ping(c *fiber.Ctx) error {
	now, err := time.Now().MarshalText()
	if err != nil {
		log.Error().Err(err).Msg("error while getting time in ping")
		return c.JSON(pingResponse{
			Status:  "error",
			Message: err.Error(),
			Time:    string(now),
		})
	}
	return c.JSON(pingResponse{
		Status:  "success",
		Message: "API is alive",
		Time:    string(now),
	})
}
