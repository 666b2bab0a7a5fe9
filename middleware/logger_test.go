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

package middleware_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/capweight/capsim/middleware"
)

var _ = Describe("Logger middleware", func() {
	var app *fiber.App

	BeforeEach(func() {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		app = fiber.New()
		app.Use(middleware.NewLogger())
	})

	It("carries a request span on the user context", func() {
		var sawSpan bool
		app.Get("/ping", func(c *fiber.Ctx) error {
			sawSpan = trace.SpanFromContext(c.UserContext()).SpanContext().IsValid()
			return c.SendString("pong")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(sawSpan).To(BeTrue())
	})

	It("passes handler errors through the app error handler", func() {
		app.Get("/boom", func(c *fiber.Ctx) error {
			return fiber.ErrNotAcceptable
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusNotAcceptable))
	})
})
