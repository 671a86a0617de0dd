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

package allocation

import (
	"context"
	"sort"
	"time"

	"github.com/greenbriar/fundtrack/category"
	"github.com/greenbriar/fundtrack/data"
	"github.com/greenbriar/fundtrack/database"
	"github.com/greenbriar/fundtrack/observability/opentelemetry"
	"github.com/greenbriar/fundtrack/position"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

// FindSubtree returns the first node in the pre-order tree whose category
// carries the given name.
func FindSubtree(tree []*category.Node, name string) (*category.Node, bool) {
	for _, node := range tree {
		if node.Category.Name == name {
			return node, true
		}
	}
	return nil, false
}

// AdjustPlan grows the subtree named grow by adjPct, funding the growth
// from the subtree named shrink. When the dollars requested exceed what
// the shrink sleeve holds, the adjustment is capped: all of shrink moves
// into grow and shrink's adjustment factor becomes zero, rather than
// driving shrink negative. Factors propagate multiplicatively to every
// descendant's adjusted balance.
func AdjustPlan(tree []*category.Node, grow string, shrink string, adjPct float64) error {
	growNode, ok := FindSubtree(tree, grow)
	if !ok {
		log.Error().Stack().Str("Category", grow).Msg("grow subtree not found")
		return ErrUnknownSubtree
	}
	shrinkNode, ok := FindSubtree(tree, shrink)
	if !ok {
		log.Error().Stack().Str("Category", shrink).Msg("shrink subtree not found")
		return ErrUnknownSubtree
	}

	adjDollars := growNode.PlanBalance * adjPct
	if adjDollars-growNode.PlanBalance >= shrinkNode.PlanBalance {
		log.Info().Float64("AdjPct", adjPct).Float64("AdjDollars", adjDollars).
			Float64("ShrinkBalance", shrinkNode.PlanBalance).Msg("capping rebalance; shrink sleeve fully consumed")
		scale(growNode, 1.0+shrinkNode.PlanBalance/growNode.PlanBalance)
		scale(shrinkNode, 0)
		return nil
	}

	scale(growNode, adjPct)
	scale(shrinkNode, 1.0-(adjDollars-growNode.PlanBalance)/shrinkNode.PlanBalance)
	return nil
}

func scale(node *category.Node, pct float64) {
	node.AdjPlanBalance *= pct
	node.AdjPct = pct
	for _, c := range node.Children {
		scale(c, pct)
	}
}

// Cell is one account's slice of a report row. Nil cells mean the account's
// tree does not reference the row's fund.
type Cell struct {
	Shares         float64 `json:"shares"`
	Balance        float64 `json:"balance"`
	AdjPlanBalance float64 `json:"adjPlanBalance"`
	ChangeInShares float64 `json:"changeInShares"`
	PriceUnknown   bool    `json:"priceUnknown,omitempty"`
}

// Row aggregates one fund across every account in the run.
type Row struct {
	Ticker     string  `json:"ticker"`
	SharePrice float64 `json:"sharePrice"`
	Cells      []*Cell `json:"cells"`
}

func (r *Row) netChange() float64 {
	total := 0.0
	for _, c := range r.Cells {
		if c != nil {
			total += c.AdjPlanBalance - c.Balance
		}
	}
	return total
}

// AccountTotal reconciles one account: its stated balance against the sum
// of its row balances and adjusted targets.
type AccountTotal struct {
	AccountName    string  `json:"accountName"`
	Balance        float64 `json:"balance"`
	RowBalance     float64 `json:"rowBalance"`
	AdjPlanBalance float64 `json:"adjPlanBalance"`
}

// Report is the rebalance worksheet: one row per fund, ordered sells before
// buys so proceeds are available when the buy orders are entered.
type Report struct {
	Date   time.Time       `json:"date"`
	AdjPct float64         `json:"adjPct"`
	Rows   []*Row          `json:"rows"`
	Totals []*AccountTotal `json:"totals"`
}

// Rebalancer runs the full allocation pipeline for a set of accounts
// sharing one category configuration.
type Rebalancer struct {
	store  position.Store
	prices *data.PriceHistory
	cfg    *category.Config
	grow   string
	shrink string
}

func NewRebalancer(store position.Store, prices *data.PriceHistory, cfg *category.Config) *Rebalancer {
	grow := viper.GetString("rebalance.grow")
	if grow == "" {
		grow = "US"
	}
	shrink := viper.GetString("rebalance.shrink")
	if shrink == "" {
		shrink = "Bonds"
	}
	return &Rebalancer{
		store:  store,
		prices: prices,
		cfg:    cfg,
		grow:   grow,
		shrink: shrink,
	}
}

// AccountTree builds, values and plans one account's tree as of date. The
// returned pre-order list is ready for AdjustPlan / ComputeChanges.
func (r *Rebalancer) AccountTree(ctx context.Context, acct *data.Account, date time.Time, tags []string) ([]*category.Node, error) {
	tree, err := category.BuildTree(r.cfg, acct.CategoryRoot, acct, tags)
	if err != nil {
		return nil, err
	}
	if err := Populate(ctx, tree, r.store, r.prices, acct, date); err != nil {
		return nil, err
	}
	if err := ValidatePlans(tree); err != nil {
		return nil, err
	}
	if err := ApplyPlans(tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// Run produces the rebalance report for the accounts as of date, applying
// adjPct to the configured grow sleeve of each account's tree. Funds the
// account still holds but the tree no longer references show up as
// liquidations (sell everything).
func (r *Rebalancer) Run(ctx context.Context, accounts []*data.Account, date time.Time, adjPct float64, tags []string) (*Report, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "allocation.Rebalance")
	defer span.End()

	date = data.Midnight(date)
	subLog := log.With().Time("Date", date).Float64("AdjPct", adjPct).Logger()
	subLog.Info().Int("NumAccounts", len(accounts)).Msg("rebalancing accounts")

	trees := make([][]*category.Node, 0, len(accounts))
	held := make([]map[string]*position.Record, 0, len(accounts))
	for _, acct := range accounts {
		tree, err := r.AccountTree(ctx, acct, date, tags)
		if err != nil {
			subLog.Error().Stack().Err(err).Str("Account", acct.Name).Msg("could not build account tree")
			return nil, err
		}
		if err := AdjustPlan(tree, r.grow, r.shrink, adjPct); err != nil {
			return nil, err
		}
		ComputeChanges(tree)
		trees = append(trees, tree)

		recs, err := position.SharesOnDate(ctx, r.store, acct, date)
		if err != nil {
			return nil, err
		}
		held = append(held, recs)
	}

	report := buildReport(accounts, trees, held)
	report.Date = date
	report.AdjPct = adjPct
	return report, nil
}

func buildReport(accounts []*data.Account, trees [][]*category.Node, held []map[string]*position.Record) *Report {
	cells := make([]map[string]*Cell, len(trees))
	for i, tree := range trees {
		cells[i] = make(map[string]*Cell)
		for _, node := range tree {
			if !node.IsLeaf() || node.Ticker == "" {
				continue
			}
			cells[i][node.Ticker] = &Cell{
				Shares:         node.Shares,
				Balance:        node.Balance,
				AdjPlanBalance: node.AdjPlanBalance,
				ChangeInShares: node.ChangeInShares,
				PriceUnknown:   node.PriceUnknown,
			}
		}
	}

	prices := make(map[string]float64)
	order := make([]string, 0, 16)
	seen := make(map[string]bool)
	for i, tree := range trees {
		for _, node := range tree {
			if !node.IsLeaf() || node.Ticker == "" {
				continue
			}
			if !seen[node.Ticker] {
				seen[node.Ticker] = true
				order = append(order, node.Ticker)
				prices[node.Ticker] = node.SharePrice
			}
		}
		// Funds still held but no longer planned are liquidated outright.
		for ticker, rec := range held[i] {
			if _, ok := cells[i][ticker]; ok {
				continue
			}
			cells[i][ticker] = &Cell{
				Shares:         rec.Shares,
				Balance:        rec.Balance,
				AdjPlanBalance: 0,
				ChangeInShares: -rec.Shares,
			}
			if !seen[ticker] {
				seen[ticker] = true
				order = append(order, ticker)
				prices[ticker] = rec.SharePrice
			}
		}
	}

	rows := make([]*Row, 0, len(order))
	for _, ticker := range order {
		row := &Row{Ticker: ticker, SharePrice: prices[ticker], Cells: make([]*Cell, len(trees))}
		for i := range trees {
			row.Cells[i] = cells[i][ticker]
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].netChange() < rows[j].netChange()
	})

	totals := make([]*AccountTotal, len(accounts))
	for i, acct := range accounts {
		total := &AccountTotal{AccountName: acct.Name, Balance: trees[i][0].Balance}
		for _, row := range rows {
			if c := row.Cells[i]; c != nil {
				total.RowBalance += c.Balance
				total.AdjPlanBalance += c.AdjPlanBalance
			}
		}
		totals[i] = total
	}

	return &Report{Rows: rows, Totals: totals}
}

// MarkRebalanced stamps today's date on every account belonging to owner.
func MarkRebalanced(ctx context.Context, owner string) error {
	trx, err := database.Trx(ctx)
	if err != nil {
		return err
	}
	if _, err := trx.Exec(ctx, `UPDATE accounts SET rebalance_date=$1 WHERE owner=$2`, data.Midnight(time.Now()), owner); err != nil {
		log.Error().Stack().Err(err).Str("Owner", owner).Msg("could not update rebalance date")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}
	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit rebalance date")
		return err
	}
	return nil
}
