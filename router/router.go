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

package router

import (
	"github.com/capweight/capsim/handler"
	"github.com/capweight/capsim/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/spf13/viper"
)

// SetupRoutes registers the API endpoints. The /ping endpoint is always
// public; the /v1 group is protected when auth.enabled is set.
func SetupRoutes(app *fiber.App, jwks *jwk.AutoRefresh, jwksURL string) {
	app.Get("/ping", handler.Ping)

	api := app.Group("/v1")
	if viper.GetBool("auth.enabled") {
		api.Use(middleware.Auth(jwks, jwksURL))
	}

	api.Get("/strategies", handler.ListStrategies)
	api.Get("/strategies/:shortcode", handler.GetStrategy)

	api.Post("/backtests", handler.RunBacktest)
	api.Post("/backtests/queued", handler.QueueBacktest)

	api.Get("/datasets", handler.ListSecurities)
}
