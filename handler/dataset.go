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

package handler

import (
	"errors"

	"github.com/capweight/capsim/data"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type datasetResponse struct {
	Provider   string           `json:"provider"`
	Securities []*data.Security `json:"securities"`
}

// ListSecurities lists the securities available from the configured store
func ListSecurities(c *fiber.Ctx) error {
	if dataManager == nil {
		log.Error().Msg("no data manager configured for dataset handler")
		return fiber.ErrServiceUnavailable
	}

	securities, err := dataManager.Securities(c.UserContext())
	if err != nil {
		if errors.Is(err, data.ErrNotSupported) {
			return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"status": "error", "message": "provider cannot enumerate its universe"})
		}
		log.Error().Err(err).Msg("could not list securities")
		return fiber.ErrInternalServerError
	}

	return c.JSON(datasetResponse{
		Provider:   dataManager.ProviderName(),
		Securities: securities,
	})
}
