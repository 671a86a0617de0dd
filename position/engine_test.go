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

package position_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/google/uuid"

	"github.com/greenbriar/fundtrack/data"
	"github.com/greenbriar/fundtrack/position"
)

var _ = Describe("Engine", func() {
	var (
		ctx     context.Context
		acct    *data.Account
		history *data.PriceHistory
		ledger  *position.MemoryLedger
		store   *position.MemoryStore
		engine  *position.Engine
	)

	day := func(n int) time.Time {
		return data.Day(2022, 3, 1).AddDate(0, 0, n-1)
	}

	deposit := func(on time.Time, amount float64) *position.Transaction {
		return &position.Transaction{
			ID:        uuid.New(),
			AccountID: acct.ID,
			TradeDate: on,
			Kind:      "Contribution",
			NetAmount: amount,
		}
	}

	trade := func(on time.Time, ticker string, shares float64, price float64) *position.Transaction {
		kind := "Buy"
		if shares < 0 {
			kind = "Sell"
		}
		return &position.Transaction{
			ID:         uuid.New(),
			AccountID:  acct.ID,
			TradeDate:  on,
			Kind:       kind,
			Ticker:     ticker,
			Shares:     shares,
			SharePrice: price,
			NetAmount:  -shares * price,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		acct = &data.Account{
			ID:    uuid.New(),
			Owner: "bruce",
			Name:  "IRA",
		}
		history = data.NewPriceHistory()
		for n := 1; n <= 10; n++ {
			_, err := history.Upsert("VFIAX", day(n), 5.0)
			Expect(err).To(BeNil())
		}
		ledger = position.NewMemoryLedger()
		store = position.NewMemoryStore()
		engine = position.NewEngine(history, ledger, store)
	})

	Describe("when reconstructing a buy-and-hold account", func() {
		BeforeEach(func() {
			acct.TransactionStartDate = day(1)
			acct.TransactionEndDate = day(5)
			ledger.Add(
				deposit(day(1), 1000),
				trade(day(1), "VFIAX", 10, 5.0),
			)
		})

		It("should emit one record per day per sleeve", func() {
			count, err := engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).To(BeNil())
			Expect(count).To(Equal(10))

			series := store.Series(acct.ID, "VFIAX")
			Expect(len(series)).To(Equal(5))
			for _, rec := range series {
				Expect(rec.Shares).To(Equal(10.0))
				Expect(rec.Balance).Should(BeNumerically("~", 50))
				Expect(rec.PctOfPeak).Should(BeNumerically("~", 1.0))
			}
		})

		It("should accrue the cash side into the settlement sleeve", func() {
			_, err := engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).To(BeNil())

			series := store.Series(acct.ID, data.SettlementFund())
			Expect(len(series)).To(Equal(5))
			for _, rec := range series {
				Expect(rec.Shares).Should(BeNumerically("~", 950))
				Expect(rec.SharePrice).To(Equal(1.0))
				Expect(rec.Balance).Should(BeNumerically("~", 950))
			}
		})

		It("should move the account's reconstructed window", func() {
			_, err := engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).To(BeNil())
			Expect(acct.SharesStartDate).To(Equal(day(1)))
			Expect(acct.SharesEndDate).To(Equal(day(5)))
		})

		It("should write nothing on a re-run with an unchanged window", func() {
			_, err := engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).To(BeNil())
			count, err := engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).To(BeNil())
			Expect(count).To(Equal(0))
			Expect(store.Count(acct.ID)).To(Equal(10))
		})

		It("should extend incrementally when new transaction dates arrive", func() {
			_, err := engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).To(BeNil())

			acct.TransactionEndDate = day(7)
			count, err := engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).To(BeNil())
			Expect(count).To(Equal(4))
			Expect(len(store.Series(acct.ID, "VFIAX"))).To(Equal(7))
			Expect(acct.SharesEndDate).To(Equal(day(7)))
		})

		It("should rebuild from scratch on reload", func() {
			_, err := engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).To(BeNil())
			count, err := engine.Update(ctx, []*data.Account{acct}, true)
			Expect(err).To(BeNil())
			Expect(count).To(Equal(10))
			Expect(store.Count(acct.ID)).To(Equal(10))
		})

		It("should detect a store out of sync with the bookkeeping dates", func() {
			_, err := engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).To(BeNil())

			acct.SharesEndDate = day(4)
			acct.TransactionEndDate = day(7)
			_, err = engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).ToNot(BeNil())
		})
	})

	Describe("when a fund is liquidated and later repurchased", func() {
		BeforeEach(func() {
			acct.TransactionStartDate = day(1)
			acct.TransactionEndDate = day(8)
			ledger.Add(
				deposit(day(1), 1000),
				trade(day(1), "VFIAX", 10, 5.0),
				trade(day(3), "VFIAX", -10, 5.0),
				trade(day(6), "VFIAX", 5, 5.0),
			)
		})

		It("should suspend emission while the balance is within tolerance", func() {
			_, err := engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).To(BeNil())

			series := store.Series(acct.ID, "VFIAX")
			dates := make([]time.Time, 0, len(series))
			for _, rec := range series {
				dates = append(dates, rec.Date)
			}
			Expect(dates).To(Equal([]time.Time{day(1), day(2), day(6), day(7), day(8)}))
		})

		It("should resume with the repurchased share count", func() {
			_, err := engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).To(BeNil())

			series := store.Series(acct.ID, "VFIAX")
			last := series[len(series)-1]
			Expect(last.Shares).To(Equal(5.0))
			Expect(last.Balance).Should(BeNumerically("~", 25))
		})

		It("should keep the settlement sleeve continuous through the gap", func() {
			_, err := engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).To(BeNil())
			Expect(len(store.Series(acct.ID, data.SettlementFund()))).To(Equal(8))
		})
	})

	Describe("when a sell exceeds the held shares", func() {
		BeforeEach(func() {
			acct.TransactionStartDate = day(1)
			acct.TransactionEndDate = day(5)
			ledger.Add(
				deposit(day(1), 1000),
				trade(day(1), "VFIAX", 10, 5.0),
				trade(day(3), "VFIAX", -12, 5.0),
			)
		})

		It("should fail the account and commit nothing", func() {
			_, err := engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).ToNot(BeNil())
			Expect(store.Count(acct.ID)).To(Equal(0))
		})
	})

	Describe("when one account fails", func() {
		var healthy *data.Account

		BeforeEach(func() {
			acct.TransactionStartDate = day(1)
			acct.TransactionEndDate = day(3)
			ledger.Add(trade(day(1), "VFIAX", -10, 5.0))

			healthy = &data.Account{
				ID:                   uuid.New(),
				Owner:                "bruce",
				Name:                 "Roth",
				TransactionStartDate: day(1),
				TransactionEndDate:   day(3),
			}
			ledger.Add(&position.Transaction{
				ID:        uuid.New(),
				AccountID: healthy.ID,
				TradeDate: day(1),
				Kind:      "Contribution",
				NetAmount: 500,
			})
		})

		It("should still update the other accounts", func() {
			count, err := engine.Update(ctx, []*data.Account{acct, healthy}, false)
			Expect(err).ToNot(BeNil())
			Expect(count).To(Equal(3))
			Expect(store.Count(healthy.ID)).To(Equal(3))
			Expect(store.Count(acct.ID)).To(Equal(0))
		})
	})

	Describe("when an account has no transactions", func() {
		It("should skip it with an error", func() {
			_, err := engine.Update(ctx, []*data.Account{acct}, false)
			Expect(err).ToNot(BeNil())
		})
	})
})

var _ = Describe("CashRule", func() {
	rule := position.CashRule{
		SettlementTicker: "VMFXX",
		DividendType:     "Dividend",
		TransferPrefix:   "Transfer",
	}

	It("should accrue cash rows with no fund", func() {
		Expect(rule.Accrues(&position.Transaction{NetAmount: 100})).To(BeTrue())
	})

	It("should accrue the cash side of an ordinary trade", func() {
		Expect(rule.Accrues(&position.Transaction{Ticker: "VFIAX", Kind: "Buy", NetAmount: -50})).To(BeTrue())
	})

	It("should skip transfers of ordinary funds", func() {
		Expect(rule.Accrues(&position.Transaction{Ticker: "VFIAX", Kind: "Transfer In", NetAmount: 50})).To(BeFalse())
	})

	It("should accrue only dividends on the settlement fund itself", func() {
		Expect(rule.Accrues(&position.Transaction{Ticker: "VMFXX", Kind: "Dividend", NetAmount: 1.23})).To(BeTrue())
		Expect(rule.Accrues(&position.Transaction{Ticker: "VMFXX", Kind: "Buy", NetAmount: -10})).To(BeFalse())
	})

	It("should skip rows with a zero net amount", func() {
		Expect(rule.Accrues(&position.Transaction{Ticker: "VFIAX", Kind: "Buy"})).To(BeFalse())
	})
})

var _ = Describe("Transaction", func() {
	It("should derive a stable source id", func() {
		t1 := &position.Transaction{
			AccountID: uuid.MustParse("f47ac10b-58cc-0372-8567-0e02b2c3d479"),
			TradeDate: data.Day(2022, 3, 1),
			Kind:      "Buy",
			Ticker:    "VFIAX",
			Shares:    10,
			NetAmount: -50,
		}
		t2 := &position.Transaction{
			AccountID: t1.AccountID,
			TradeDate: data.Day(2022, 3, 1),
			Kind:      "Buy",
			Ticker:    "VFIAX",
			Shares:    10,
			NetAmount: -50,
		}
		Expect(t1.ComputeSourceID()).To(BeNil())
		Expect(t2.ComputeSourceID()).To(BeNil())
		Expect(t1.SourceID).To(Equal(t2.SourceID))
	})

	It("should change when the share count changes", func() {
		t1 := &position.Transaction{TradeDate: data.Day(2022, 3, 1), Ticker: "VFIAX", Shares: 10}
		t2 := &position.Transaction{TradeDate: data.Day(2022, 3, 1), Ticker: "VFIAX", Shares: 11}
		Expect(t1.ComputeSourceID()).To(BeNil())
		Expect(t2.ComputeSourceID()).To(BeNil())
		Expect(t1.SourceID).ToNot(Equal(t2.SourceID))
	})
})

var _ = Describe("SharesOnDate", func() {
	var (
		ctx   context.Context
		acct  *data.Account
		store *position.MemoryStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		acct = &data.Account{
			ID:              uuid.New(),
			Owner:           "bruce",
			Name:            "IRA",
			SharesStartDate: data.Day(2022, 3, 1),
			SharesEndDate:   data.Day(2022, 3, 5),
		}
		store = position.NewMemoryStore()
		err := store.SaveAll(ctx, acct.ID, []*position.Record{
			{AccountID: acct.ID, Ticker: "VFIAX", Date: data.Day(2022, 3, 3), Shares: 10, SharePrice: 5, Balance: 50},
			{AccountID: acct.ID, Ticker: "VMFXX", Date: data.Day(2022, 3, 3), Shares: 25, SharePrice: 1, Balance: 25},
		})
		Expect(err).To(BeNil())
	})

	It("should return the per-fund records inside the window", func() {
		recs, err := position.SharesOnDate(ctx, store, acct, data.Day(2022, 3, 3))
		Expect(err).To(BeNil())
		Expect(len(recs)).To(Equal(2))
		Expect(recs["VFIAX"].Balance).To(Equal(50.0))
	})

	It("should be empty outside the reconstructed window", func() {
		recs, err := position.SharesOnDate(ctx, store, acct, data.Day(2022, 2, 25))
		Expect(err).To(BeNil())
		Expect(len(recs)).To(Equal(0))
	})

	It("should sum balances on a date", func() {
		balance, err := position.BalanceOnDate(ctx, store, acct, data.Day(2022, 3, 3))
		Expect(err).To(BeNil())
		Expect(balance).Should(BeNumerically("~", 75))
	})
})
