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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/greenbriar/fundtrack/data"
)

var _ = Describe("PriceHistory", func() {
	var (
		history *data.PriceHistory
		d1      time.Time
	)

	day := func(n int) time.Time {
		return d1.AddDate(0, 0, n-1)
	}

	BeforeEach(func() {
		history = data.NewPriceHistory()
		d1 = time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	})

	Describe("when maintaining peak and trough watermarks", func() {
		Context("with a rise then a drawdown", func() {
			BeforeEach(func() {
				_, err := history.Upsert("VFIAX", day(1), 10)
				Expect(err).To(BeNil())
				_, err = history.Upsert("VFIAX", day(2), 12)
				Expect(err).To(BeNil())
				_, err = history.Upsert("VFIAX", day(3), 8)
				Expect(err).To(BeNil())
			})

			It("should carry no trough while making new peaks", func() {
				recs := history.Records("VFIAX")
				Expect(recs[0].PeakClose).To(Equal(10.0))
				Expect(recs[0].HasTrough()).To(BeFalse())
				Expect(recs[1].PeakClose).To(Equal(12.0))
				Expect(recs[1].HasTrough()).To(BeFalse())
			})

			It("should record the trough below the standing peak", func() {
				recs := history.Records("VFIAX")
				Expect(recs[2].PeakClose).To(Equal(12.0))
				Expect(recs[2].TroughClose).To(Equal(8.0))
				Expect(recs[2].TroughDate).To(Equal(day(3)))
				Expect(recs[2].PctOfPeak()).Should(BeNumerically("~", 1.5))
			})

			It("should keep the deeper trough when prices recover partially", func() {
				rec, err := history.Upsert("VFIAX", day(4), 9)
				Expect(err).To(BeNil())
				Expect(rec.TroughClose).To(Equal(8.0))
				Expect(rec.TroughDate).To(Equal(day(3)))
			})

			It("should clear the trough on a new peak", func() {
				rec, err := history.Upsert("VFIAX", day(4), 13)
				Expect(err).To(BeNil())
				Expect(rec.PeakClose).To(Equal(13.0))
				Expect(rec.PeakDate).To(Equal(day(4)))
				Expect(rec.HasTrough()).To(BeFalse())
			})
		})

		Context("with a duplicate date from the vendor", func() {
			It("should let the last write win and recompute watermarks", func() {
				_, err := history.Upsert("VFIAX", day(1), 10)
				Expect(err).To(BeNil())
				_, err = history.Upsert("VFIAX", day(2), 12)
				Expect(err).To(BeNil())
				rec, err := history.Upsert("VFIAX", day(2), 11)
				Expect(err).To(BeNil())

				recs := history.Records("VFIAX")
				Expect(len(recs)).To(Equal(2))
				Expect(rec.Close).To(Equal(11.0))
				Expect(rec.PeakClose).To(Equal(11.0))
				Expect(rec.HasTrough()).To(BeFalse())
			})
		})

		Context("with an out-of-order date", func() {
			It("should reject the record", func() {
				_, err := history.Upsert("VFIAX", day(3), 10)
				Expect(err).To(BeNil())
				_, err = history.Upsert("VFIAX", day(1), 9)
				Expect(err).To(MatchError(data.ErrOutOfOrderPrice))
			})
		})
	})

	Describe("when looking up a price on or before a date", func() {
		BeforeEach(func() {
			_, err := history.Upsert("VFIAX", day(1), 10)
			Expect(err).To(BeNil())
		})

		It("should return the exact date's close", func() {
			rec, err := history.PriceOnOrBefore("VFIAX", day(1))
			Expect(err).To(BeNil())
			Expect(rec.Close).To(Equal(10.0))
		})

		It("should carry the latest close forward over a weekend-sized gap", func() {
			rec, err := history.PriceOnOrBefore("VFIAX", day(4))
			Expect(err).To(BeNil())
			Expect(rec.Date).To(Equal(day(1)))
		})

		It("should allow the gap to reach the configured bound", func() {
			_, err := history.PriceOnOrBefore("VFIAX", day(6))
			Expect(err).To(BeNil())
		})

		It("should refuse to reach beyond the configured bound", func() {
			_, err := history.PriceOnOrBefore("VFIAX", day(7))
			Expect(err).To(MatchError(data.ErrNoPriceData))
		})

		It("should report missing data before the first close", func() {
			_, err := history.PriceOnOrBefore("VFIAX", day(1).AddDate(0, 0, -1))
			Expect(err).To(MatchError(data.ErrNoPriceData))
		})

		It("should value the settlement fund at 1.0 without a series", func() {
			rec, err := history.PriceOnOrBefore(data.SettlementFund(), day(1))
			Expect(err).To(BeNil())
			Expect(rec.Close).To(Equal(1.0))
			Expect(rec.PctOfPeak()).To(Equal(1.0))
		})
	})
})

var _ = Describe("Dates", func() {
	It("should normalize to midnight UTC", func() {
		nyc, err := time.LoadLocation("America/New_York")
		Expect(err).To(BeNil())
		dt := time.Date(2022, 3, 1, 18, 30, 0, 0, nyc)
		Expect(data.Midnight(dt)).To(Equal(time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)))
	})

	It("should count whole days apart", func() {
		a := data.Day(2022, 3, 1)
		b := data.Day(2022, 3, 6)
		Expect(data.DaysApart(a, b)).To(Equal(5))
		Expect(data.DaysApart(b, a)).To(Equal(5))
	})

	It("should step one day at a time", func() {
		Expect(data.NextDay(data.Day(2022, 2, 28))).To(Equal(data.Day(2022, 3, 1)))
	})
})
