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

// Package allocation values a resolved category tree against an account's
// reconstructed positions and computes the plan targets that drive
// rebalancing: every node gets a plan balance from its plan (top-down, with
// a shared remaining-balance accumulator), and a cross-subtree adjustment
// moves money between two configured sleeves without letting either go
// negative.
package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/greenbriar/fundtrack/category"
	"github.com/greenbriar/fundtrack/data"
	"github.com/greenbriar/fundtrack/position"
	"github.com/rs/zerolog/log"
)

// Populate fills a pre-order tree with shares, prices and balances as of
// date. Leaves holding a position copy the reconstructed record; leaves the
// account has never held are valued at zero shares against the fund's price
// history so their plan targets still price out. A leaf whose fund has no
// usable price is marked PriceUnknown rather than failing the run. Group
// balances are the bottom-up sum of their children.
func Populate(ctx context.Context, tree []*category.Node, store position.Store, prices *data.PriceHistory, acct *data.Account, date time.Time) error {
	recs, err := position.SharesOnDate(ctx, store, acct, date)
	if err != nil {
		return err
	}

	for _, node := range tree {
		if !node.IsLeaf() {
			continue
		}
		if node.Ticker == "" {
			log.Error().Stack().Str("Category", node.Category.Name).Msg("leaf category has no fund assigned")
			return fmt.Errorf("%w: category %q", ErrNoFund, node.Category.Name)
		}

		if rec, ok := recs[node.Ticker]; ok {
			node.Shares = rec.Shares
			node.SharePrice = rec.SharePrice
			node.Balance = rec.Balance
			node.PctOfPeak = rec.PctOfPeak
			node.PeakDate = rec.PeakDate
			if rec.HasTrough() {
				node.PctOfTrough = rec.PctOfTrough
				node.TroughDate = rec.TroughDate
			}
			continue
		}

		// Never-held fund: zero shares, priced from history.
		price, err := prices.PriceOnOrBefore(node.Ticker, date)
		if err != nil {
			log.Warn().Str("Ticker", node.Ticker).Time("Date", date).Msg("no price for unheld fund; marking price unknown")
			node.PriceUnknown = true
			continue
		}
		node.SharePrice = price.Close
		node.PctOfPeak = price.PctOfPeak()
		node.PeakDate = price.PeakDate
		if pct, ok := price.PctOfTrough(); ok {
			node.PctOfTrough = pct
			node.TroughDate = price.TroughDate
		}
	}

	sumBalances(tree[0])
	return nil
}

func sumBalances(node *category.Node) float64 {
	if node.IsLeaf() {
		return node.Balance
	}
	total := 0.0
	for _, c := range node.Children {
		total += sumBalances(c)
	}
	node.Balance = total
	return total
}

// ValidatePlans checks that every node carries a resolved plan and that
// remainder plans only appear in last position within their sibling group.
// Running it before ApplyPlans turns a mis-ordered configuration into a
// clean error instead of a half-computed tree.
func ValidatePlans(tree []*category.Node) error {
	for _, node := range tree {
		if node.Plan == nil {
			log.Error().Stack().Str("Category", node.Category.Name).Msg("category has no plan")
			return fmt.Errorf("%w: category %q", category.ErrNoPlan, node.Category.Name)
		}
		for i, c := range node.Children {
			if c.Plan != nil && c.Plan.Kind == category.PlanRemainder && i != len(node.Children)-1 {
				log.Error().Stack().Str("Category", c.Category.Name).Str("Parent", node.Category.Name).
					Msg("remainder plan is not last among its siblings")
				return fmt.Errorf("%w: category %q", category.ErrInvalidPlanOrder, c.Category.Name)
			}
		}
	}
	return nil
}

// ApplyPlans computes plan targets top-down. The root's plan is evaluated
// against the full account balance; each group then hands its own plan
// balance to its children as both the starting balance and a shared
// remaining-balance accumulator, decremented as each child is computed, so
// a trailing remainder plan absorbs exactly what its siblings left.
// Adjusted balances default to the plan balances until a rebalance
// directive moves them.
func ApplyPlans(tree []*category.Node) error {
	root := tree[0]
	acctBalance := root.Balance
	if acctBalance == 0 {
		return ErrNoAccountBalance
	}

	var calc func(node *category.Node, starting float64, remaining float64, last bool) (float64, error)
	calc = func(node *category.Node, starting float64, remaining float64, last bool) (float64, error) {
		if node.Plan == nil {
			return 0, fmt.Errorf("%w: category %q", category.ErrNoPlan, node.Category.Name)
		}
		pct, balance, err := node.Plan.Target(starting, remaining, last)
		if err != nil {
			log.Error().Stack().Err(err).Str("Category", node.Category.Name).Msg("could not compute plan target")
			return 0, fmt.Errorf("%w: category %q", err, node.Category.Name)
		}
		node.PlanPctOfGroup = pct
		node.PlanBalance = balance
		node.PlanPctOfAccount = balance / acctBalance

		childRemaining := balance
		for i, c := range node.Children {
			childBalance, err := calc(c, balance, childRemaining, i == len(node.Children)-1)
			if err != nil {
				return 0, err
			}
			childRemaining -= childBalance
		}
		return balance, nil
	}

	if _, err := calc(root, acctBalance, acctBalance, true); err != nil {
		return err
	}

	for _, node := range tree {
		node.AdjPlanBalance = node.PlanBalance
		node.AdjPct = 1.0
	}
	return nil
}

// ComputeChanges turns the adjusted plan balances into per-leaf share
// deltas. A zero or unknown share price is reportable, not fatal: nobody
// can size an order without a price, but the rest of the run still stands.
func ComputeChanges(tree []*category.Node) {
	for _, node := range tree {
		if !node.IsLeaf() || node.Ticker == "" {
			continue
		}
		change := node.AdjPlanBalance - node.Balance
		if change == 0 {
			node.ChangeInShares = 0
			continue
		}
		if node.SharePrice == 0 {
			node.PriceUnknown = true
			continue
		}
		node.ChangeInShares = change / node.SharePrice
	}
}
