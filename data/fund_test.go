// Copyright 2021-2022
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

package data_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/greenbriar/fundtrack/data"
)

var _ = Describe("FundRegistry", func() {
	var registry *data.FundRegistry

	BeforeEach(func() {
		registry = data.NewFundRegistry([]*data.Fund{
			{Ticker: "VFIAX", Name: "Vanguard 500 Index Admiral"},
		})
	})

	Context("when the ticker is known", func() {
		It("returns the fund", func() {
			fund, err := registry.Get("VFIAX")
			Expect(err).NotTo(HaveOccurred())
			Expect(fund.Name).To(Equal("Vanguard 500 Index Admiral"))
		})

		It("does not replace the fund on Ensure", func() {
			fund := registry.Ensure("VFIAX", "other name")
			Expect(fund.Name).To(Equal("Vanguard 500 Index Admiral"))
			Expect(registry.Funds()).To(HaveLen(1))
		})
	})

	Context("when the ticker is unknown", func() {
		It("returns ErrUnknownFund from Get", func() {
			_, err := registry.Get("VTSAX")
			Expect(err).To(MatchError(data.ErrUnknownFund))
		})

		It("creates a minimal fund on Ensure", func() {
			fund := registry.Ensure("VTSAX", "Vanguard Total Stock Admiral")
			Expect(fund.Ticker).To(Equal("VTSAX"))

			got, err := registry.Get("VTSAX")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeIdenticalTo(fund))
			Expect(registry.Funds()).To(HaveLen(2))
		})
	})
})
