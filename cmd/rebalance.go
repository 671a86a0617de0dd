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

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/greenbriar/fundtrack/allocation"
	"github.com/greenbriar/fundtrack/common"
	"github.com/greenbriar/fundtrack/data"
	"github.com/greenbriar/fundtrack/database"
	"github.com/greenbriar/fundtrack/observability/opentelemetry"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	rebalDate   string
	rebalTags   string
	rebalAdjPct float64
	rebalJSON   bool
	rebalMark   bool
)

func init() {
	rebalanceCmd.Flags().StringVar(&rebalDate, "date", "", "Valuation date as YYYY-MM-dd; defaults to today")
	rebalanceCmd.Flags().StringVar(&rebalTags, "tags", "", "Comma separated override tags")
	rebalanceCmd.Flags().Float64Var(&rebalAdjPct, "adj-pct", 1.0, "Growth factor applied to the grow sleeve")
	rebalanceCmd.Flags().BoolVar(&rebalJSON, "json", false, "Emit the rebalance report as JSON")
	rebalanceCmd.Flags().BoolVar(&rebalMark, "mark", false, "Stamp today's date as the owner's rebalance date")
	rootCmd.AddCommand(rebalanceCmd)
}

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance <owner>",
	Short: "Compute buy/sell adjustments across an owner's accounts",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		common.SetupCache()

		shutdown, err := opentelemetry.Setup()
		if err != nil {
			log.Warn().Err(err).Msg("could not initialize tracing; continuing without it")
		}

		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}

		owner := args[0]
		accounts, err := data.LoadAccounts(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not load accounts")
		}
		owned := make([]*data.Account, 0, len(accounts))
		for _, acct := range accounts {
			if acct.Owner == owner && acct.CategoryRoot != 0 {
				owned = append(owned, acct)
			}
		}
		if len(owned) == 0 {
			log.Fatal().Str("Owner", owner).Msg("owner has no accounts with an allocation tree")
		}

		date := time.Now()
		if rebalDate != "" {
			date, err = time.Parse("2006-01-02", rebalDate)
			if err != nil {
				log.Fatal().Err(err).Str("InputStr", rebalDate).Msg("could not parse date - expected format 2006-01-02")
			}
		}

		rebalancer, err := buildRebalancer(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not load allocation configuration")
		}

		report, err := rebalancer.Run(ctx, owned, date, rebalAdjPct, splitTags(rebalTags))
		if err != nil {
			log.Fatal().Err(err).Msg("rebalance failed")
		}

		if rebalJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				log.Fatal().Err(err).Msg("could not encode report")
			}
		} else {
			printReport(owned, report)
		}

		if rebalMark {
			if err := allocation.MarkRebalanced(ctx, owner); err != nil {
				log.Fatal().Err(err).Msg("could not mark accounts rebalanced")
			}
			log.Info().Str("Owner", owner).Msg("rebalance date updated")
		}

		if shutdown != nil {
			if err := shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("could not flush traces")
			}
		}
		database.LogOpenTransactions()
	},
}

func printReport(accounts []*data.Account, report *allocation.Report) {
	fmt.Printf("Rebalance for %s (adj-pct %.4f)\n\n", report.Date.Format("2006-01-02"), report.AdjPct)

	fmt.Printf("%-8s %10s", "Ticker", "Price")
	for _, acct := range accounts {
		fmt.Printf(" %18s", acct.Name)
	}
	fmt.Println()

	for _, row := range report.Rows {
		fmt.Printf("%-8s %10.2f", row.Ticker, row.SharePrice)
		for _, cell := range row.Cells {
			switch {
			case cell == nil:
				fmt.Printf(" %18s", "-")
			case cell.PriceUnknown:
				fmt.Printf(" %18s", "price unknown")
			default:
				fmt.Printf(" %+18.4f", cell.ChangeInShares)
			}
		}
		fmt.Println()
	}

	fmt.Println()
	for _, total := range report.Totals {
		fmt.Printf("%-24s balance %14.2f  rows %14.2f  target %14.2f\n",
			total.AccountName, total.Balance, total.RowBalance, total.AdjPlanBalance)
	}
}
