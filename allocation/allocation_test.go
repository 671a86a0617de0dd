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

package allocation_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/google/uuid"

	"github.com/greenbriar/fundtrack/allocation"
	"github.com/greenbriar/fundtrack/category"
	"github.com/greenbriar/fundtrack/data"
	"github.com/greenbriar/fundtrack/position"
)

var _ = Describe("Allocation", func() {
	var (
		ctx     context.Context
		acct    *data.Account
		cfg     *category.Config
		history *data.PriceHistory
		store   *position.MemoryStore
		date    time.Time
	)

	findNode := func(tree []*category.Node, name string) *category.Node {
		node, ok := allocation.FindSubtree(tree, name)
		Expect(ok).To(BeTrue())
		return node
	}

	BeforeEach(func() {
		ctx = context.Background()
		date = data.Day(2022, 3, 3)
		acct = &data.Account{
			ID:              uuid.New(),
			Owner:           "bruce",
			Name:            "IRA",
			CategoryRoot:    1,
			SharesStartDate: date,
			SharesEndDate:   date,
		}

		cfg = category.NewConfig()
		for id, name := range map[int64]string{
			1: "Root", 2: "US", 3: "Bonds", 4: "Cash", 5: "Large", 6: "Small",
		} {
			cfg.Categories[id] = &category.Category{ID: id, Name: name}
		}
		cfg.Links = []*category.Link{
			{Parent: 1, Child: 2, Order: 1},
			{Parent: 1, Child: 3, Order: 2},
			{Parent: 1, Child: 4, Order: 3},
			{Parent: 2, Child: 5, Order: 1},
			{Parent: 2, Child: 6, Order: 2},
		}
		cfg.Plans = []*category.Plan{
			{CategoryID: 1, Kind: category.PlanPercent, Percent: 1.0},
			{CategoryID: 2, Kind: category.PlanPercent, Percent: 0.6},
			{CategoryID: 3, Kind: category.PlanFixed, Amount: 30},
			{CategoryID: 4, Kind: category.PlanRemainder},
			{CategoryID: 5, Kind: category.PlanPercent, Percent: 0.5},
			{CategoryID: 6, Kind: category.PlanRemainder},
		}
		cfg.Funds = []*category.Fund{
			{CategoryID: 3, Ticker: "VBTLX"},
			{CategoryID: 4, Ticker: "VMFXX"},
			{CategoryID: 5, Ticker: "VFIAX"},
			{CategoryID: 6, Ticker: "VSMAX"},
		}

		history = data.NewPriceHistory()
		_, err := history.Upsert("VSMAX", date, 8)
		Expect(err).To(BeNil())

		store = position.NewMemoryStore()
		err = store.SaveAll(ctx, acct.ID, []*position.Record{
			{AccountID: acct.ID, Ticker: "VFIAX", Date: date, Shares: 10, SharePrice: 5, Balance: 50, PctOfPeak: 1.0, PeakDate: date},
			{AccountID: acct.ID, Ticker: "VBTLX", Date: date, Shares: 4, SharePrice: 10, Balance: 40, PctOfPeak: 1.0, PeakDate: date},
			{AccountID: acct.ID, Ticker: "VMFXX", Date: date, Shares: 10, SharePrice: 1, Balance: 10, PctOfPeak: 1.0, PeakDate: date},
		})
		Expect(err).To(BeNil())
	})

	Describe("when populating a tree from positions", func() {
		var tree []*category.Node

		BeforeEach(func() {
			var err error
			tree, err = category.BuildTree(cfg, 1, acct, nil)
			Expect(err).To(BeNil())
			Expect(allocation.Populate(ctx, tree, store, history, acct, date)).To(BeNil())
		})

		It("should copy held positions onto their leaves", func() {
			large := findNode(tree, "Large")
			Expect(large.Shares).To(Equal(10.0))
			Expect(large.SharePrice).To(Equal(5.0))
			Expect(large.Balance).To(Equal(50.0))
		})

		It("should price never-held leaves at zero shares", func() {
			small := findNode(tree, "Small")
			Expect(small.Shares).To(Equal(0.0))
			Expect(small.SharePrice).To(Equal(8.0))
			Expect(small.Balance).To(Equal(0.0))
		})

		It("should sum group balances bottom-up", func() {
			Expect(findNode(tree, "US").Balance).Should(BeNumerically("~", 50))
			Expect(tree[0].Balance).Should(BeNumerically("~", 100))
		})

		It("should mark leaves without any price as price unknown", func() {
			bare := data.NewPriceHistory()
			fresh, err := category.BuildTree(cfg, 1, acct, nil)
			Expect(err).To(BeNil())
			Expect(allocation.Populate(ctx, fresh, store, bare, acct, date)).To(BeNil())
			Expect(findNode(fresh, "Small").PriceUnknown).To(BeTrue())
		})
	})

	Describe("when applying plans", func() {
		var tree []*category.Node

		BeforeEach(func() {
			var err error
			tree, err = category.BuildTree(cfg, 1, acct, nil)
			Expect(err).To(BeNil())
			Expect(allocation.Populate(ctx, tree, store, history, acct, date)).To(BeNil())
			Expect(allocation.ValidatePlans(tree)).To(BeNil())
			Expect(allocation.ApplyPlans(tree)).To(BeNil())
		})

		It("should hand each group's plan balance to its children", func() {
			Expect(findNode(tree, "US").PlanBalance).Should(BeNumerically("~", 60))
			Expect(findNode(tree, "Large").PlanBalance).Should(BeNumerically("~", 30))
			Expect(findNode(tree, "Small").PlanBalance).Should(BeNumerically("~", 30))
		})

		It("should let the trailing remainder absorb what is left", func() {
			Expect(findNode(tree, "Bonds").PlanBalance).Should(BeNumerically("~", 30))
			Expect(findNode(tree, "Cash").PlanBalance).Should(BeNumerically("~", 10))
		})

		It("should sum direct children to the parent's plan balance", func() {
			for _, node := range tree {
				if node.IsLeaf() {
					continue
				}
				total := 0.0
				for _, c := range node.Children {
					total += c.PlanBalance
				}
				Expect(total).Should(BeNumerically("~", node.PlanBalance))
			}
		})

		It("should express every target as a pct of the account", func() {
			Expect(findNode(tree, "US").PlanPctOfAccount).Should(BeNumerically("~", 0.6))
			Expect(findNode(tree, "Large").PlanPctOfAccount).Should(BeNumerically("~", 0.3))
		})

		It("should default adjusted balances to the plan balances", func() {
			for _, node := range tree {
				Expect(node.AdjPlanBalance).Should(BeNumerically("~", node.PlanBalance))
				Expect(node.AdjPct).To(Equal(1.0))
			}
		})

		It("should reject a zero account balance", func() {
			empty, err := category.BuildTree(cfg, 1, acct, nil)
			Expect(err).To(BeNil())
			Expect(allocation.ApplyPlans(empty)).To(MatchError(allocation.ErrNoAccountBalance))
		})
	})

	Describe("when validating plan order", func() {
		It("should reject a remainder plan before its siblings end", func() {
			for _, plan := range cfg.Plans {
				if plan.CategoryID == 3 {
					plan.Kind = category.PlanRemainder
				}
				if plan.CategoryID == 4 {
					plan.Kind = category.PlanFixed
					plan.Amount = 10
				}
			}
			tree, err := category.BuildTree(cfg, 1, acct, nil)
			Expect(err).To(BeNil())
			Expect(allocation.ValidatePlans(tree)).To(MatchError(category.ErrInvalidPlanOrder))
		})
	})

	Describe("when adjusting between the grow and shrink sleeves", func() {
		var tree []*category.Node

		BeforeEach(func() {
			var err error
			tree, err = category.BuildTree(cfg, 1, acct, nil)
			Expect(err).To(BeNil())
			Expect(allocation.Populate(ctx, tree, store, history, acct, date)).To(BeNil())
			Expect(allocation.ApplyPlans(tree)).To(BeNil())
		})

		It("should scale both sleeves when the shrink side can cover", func() {
			Expect(allocation.AdjustPlan(tree, "US", "Bonds", 1.2)).To(BeNil())
			Expect(findNode(tree, "US").AdjPlanBalance).Should(BeNumerically("~", 72))
			Expect(findNode(tree, "Bonds").AdjPlanBalance).Should(BeNumerically("~", 18))
		})

		It("should propagate the factor to every descendant", func() {
			Expect(allocation.AdjustPlan(tree, "US", "Bonds", 1.2)).To(BeNil())
			Expect(findNode(tree, "Large").AdjPlanBalance).Should(BeNumerically("~", 36))
			Expect(findNode(tree, "Small").AdjPlanBalance).Should(BeNumerically("~", 36))
		})

		It("should leave uninvolved sleeves alone", func() {
			Expect(allocation.AdjustPlan(tree, "US", "Bonds", 1.2)).To(BeNil())
			Expect(findNode(tree, "Cash").AdjPlanBalance).Should(BeNumerically("~", 10))
			Expect(findNode(tree, "Cash").AdjPct).To(Equal(1.0))
		})

		It("should fail on an unknown sleeve name", func() {
			Expect(allocation.AdjustPlan(tree, "Equities", "Bonds", 1.2)).To(MatchError(allocation.ErrUnknownSubtree))
		})
	})

	Describe("when the requested growth exceeds the shrink sleeve", func() {
		It("should cap by consuming the whole shrink sleeve", func() {
			us := &category.Node{Category: &category.Category{Name: "US"}, PlanBalance: 100, AdjPlanBalance: 100, AdjPct: 1.0}
			bonds := &category.Node{Category: &category.Category{Name: "Bonds"}, PlanBalance: 50, AdjPlanBalance: 50, AdjPct: 1.0}
			tree := []*category.Node{us, bonds}

			Expect(allocation.AdjustPlan(tree, "US", "Bonds", 2.0)).To(BeNil())
			Expect(us.AdjPlanBalance).Should(BeNumerically("~", 150))
			Expect(bonds.AdjPlanBalance).Should(BeNumerically("~", 0))
			Expect(bonds.AdjPct).To(Equal(0.0))
		})
	})

	Describe("when computing share changes", func() {
		It("should size orders off the adjusted balances", func() {
			tree, err := category.BuildTree(cfg, 1, acct, nil)
			Expect(err).To(BeNil())
			Expect(allocation.Populate(ctx, tree, store, history, acct, date)).To(BeNil())
			Expect(allocation.ApplyPlans(tree)).To(BeNil())
			Expect(allocation.AdjustPlan(tree, "US", "Bonds", 1.2)).To(BeNil())
			allocation.ComputeChanges(tree)

			Expect(findNode(tree, "Large").ChangeInShares).Should(BeNumerically("~", -2.8))
			Expect(findNode(tree, "Small").ChangeInShares).Should(BeNumerically("~", 4.5))
			Expect(findNode(tree, "Bonds").ChangeInShares).Should(BeNumerically("~", -2.2))
			Expect(findNode(tree, "Cash").ChangeInShares).To(Equal(0.0))
		})

		It("should flag a missing price instead of failing", func() {
			node := &category.Node{
				Category:       &category.Category{Name: "Small"},
				Ticker:         "VSMAX",
				AdjPlanBalance: 36,
			}
			allocation.ComputeChanges([]*category.Node{node})
			Expect(node.PriceUnknown).To(BeTrue())
			Expect(node.ChangeInShares).To(Equal(0.0))
		})
	})
})

var _ = Describe("Rebalancer", func() {
	var (
		ctx     context.Context
		acct    *data.Account
		cfg     *category.Config
		history *data.PriceHistory
		store   *position.MemoryStore
		date    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		date = data.Day(2022, 3, 3)
		acct = &data.Account{
			ID:              uuid.New(),
			Owner:           "bruce",
			Name:            "IRA",
			CategoryRoot:    1,
			SharesStartDate: date,
			SharesEndDate:   date,
		}

		cfg = category.NewConfig()
		for id, name := range map[int64]string{
			1: "Root", 2: "US", 3: "Bonds", 4: "Cash", 5: "Large", 6: "Small",
		} {
			cfg.Categories[id] = &category.Category{ID: id, Name: name}
		}
		cfg.Links = []*category.Link{
			{Parent: 1, Child: 2, Order: 1},
			{Parent: 1, Child: 3, Order: 2},
			{Parent: 1, Child: 4, Order: 3},
			{Parent: 2, Child: 5, Order: 1},
			{Parent: 2, Child: 6, Order: 2},
		}
		cfg.Plans = []*category.Plan{
			{CategoryID: 1, Kind: category.PlanPercent, Percent: 1.0},
			{CategoryID: 2, Kind: category.PlanPercent, Percent: 0.6},
			{CategoryID: 3, Kind: category.PlanFixed, Amount: 30},
			{CategoryID: 4, Kind: category.PlanRemainder},
			{CategoryID: 5, Kind: category.PlanPercent, Percent: 0.5},
			{CategoryID: 6, Kind: category.PlanRemainder},
		}
		cfg.Funds = []*category.Fund{
			{CategoryID: 3, Ticker: "VBTLX"},
			{CategoryID: 4, Ticker: "VMFXX"},
			{CategoryID: 5, Ticker: "VFIAX"},
			{CategoryID: 6, Ticker: "VSMAX"},
		}

		history = data.NewPriceHistory()
		_, err := history.Upsert("VSMAX", date, 8)
		Expect(err).To(BeNil())

		store = position.NewMemoryStore()
		err = store.SaveAll(ctx, acct.ID, []*position.Record{
			{AccountID: acct.ID, Ticker: "VFIAX", Date: date, Shares: 10, SharePrice: 5, Balance: 50, PctOfPeak: 1.0, PeakDate: date},
			{AccountID: acct.ID, Ticker: "VBTLX", Date: date, Shares: 4, SharePrice: 10, Balance: 40, PctOfPeak: 1.0, PeakDate: date},
			{AccountID: acct.ID, Ticker: "VMFXX", Date: date, Shares: 10, SharePrice: 1, Balance: 10, PctOfPeak: 1.0, PeakDate: date},
			{AccountID: acct.ID, Ticker: "VTSAX", Date: date, Shares: 2, SharePrice: 20, Balance: 40, PctOfPeak: 1.0, PeakDate: date},
		})
		Expect(err).To(BeNil())
	})

	It("should order the report sells before buys", func() {
		rebalancer := allocation.NewRebalancer(store, history, cfg)
		report, err := rebalancer.Run(ctx, []*data.Account{acct}, date, 1.2, nil)
		Expect(err).To(BeNil())

		tickers := make([]string, 0, len(report.Rows))
		for _, row := range report.Rows {
			tickers = append(tickers, row.Ticker)
		}
		Expect(tickers).To(Equal([]string{"VTSAX", "VBTLX", "VFIAX", "VMFXX", "VSMAX"}))
	})

	It("should liquidate funds the plan no longer references", func() {
		rebalancer := allocation.NewRebalancer(store, history, cfg)
		report, err := rebalancer.Run(ctx, []*data.Account{acct}, date, 1.2, nil)
		Expect(err).To(BeNil())

		obsolete := report.Rows[0]
		Expect(obsolete.Ticker).To(Equal("VTSAX"))
		Expect(obsolete.Cells[0].AdjPlanBalance).To(Equal(0.0))
		Expect(obsolete.Cells[0].ChangeInShares).To(Equal(-2.0))
	})

	It("should reconcile account totals across the rows", func() {
		rebalancer := allocation.NewRebalancer(store, history, cfg)
		report, err := rebalancer.Run(ctx, []*data.Account{acct}, date, 1.2, nil)
		Expect(err).To(BeNil())

		Expect(len(report.Totals)).To(Equal(1))
		total := report.Totals[0]
		Expect(total.Balance).Should(BeNumerically("~", 100))
		Expect(total.RowBalance).Should(BeNumerically("~", 140))
		Expect(total.AdjPlanBalance).Should(BeNumerically("~", 100))
	})
})
