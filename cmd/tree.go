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
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/greenbriar/fundtrack/allocation"
	"github.com/greenbriar/fundtrack/category"
	"github.com/greenbriar/fundtrack/common"
	"github.com/greenbriar/fundtrack/data"
	"github.com/greenbriar/fundtrack/database"
	"github.com/greenbriar/fundtrack/position"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	treeDate string
	treeTags string
	treeJSON bool
)

func init() {
	treeCmd.Flags().StringVar(&treeDate, "date", "", "Valuation date as YYYY-MM-dd; defaults to the account's last reconstructed date")
	treeCmd.Flags().StringVar(&treeTags, "tags", "", "Comma separated override tags")
	treeCmd.Flags().BoolVar(&treeJSON, "json", false, "Emit the populated tree as JSON")
	rootCmd.AddCommand(treeCmd)
}

var treeCmd = &cobra.Command{
	Use:   "tree <account-name>",
	Short: "Show an account's allocation tree with balances and plan targets",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		common.SetupCache()

		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}

		acct, err := findAccount(ctx, args[0])
		if err != nil {
			log.Fatal().Err(err).Str("Account", args[0]).Msg("could not find account")
		}

		date := acct.SharesEndDate
		if treeDate != "" {
			date, err = time.Parse("2006-01-02", treeDate)
			if err != nil {
				log.Fatal().Err(err).Str("InputStr", treeDate).Msg("could not parse date - expected format 2006-01-02")
			}
		}
		if date.IsZero() {
			log.Fatal().Msg("account has no reconstructed positions; run `fundtrack update` first")
		}

		rebalancer, err := buildRebalancer(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not load allocation configuration")
		}

		tree, err := rebalancer.AccountTree(ctx, acct, data.Midnight(date), splitTags(treeTags))
		if err != nil {
			log.Fatal().Err(err).Msg("could not build account tree")
		}

		if treeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(tree[0]); err != nil {
				log.Fatal().Err(err).Msg("could not encode tree")
			}
			return
		}
		printTree(tree)
	},
}

func printTree(tree []*category.Node) {
	for _, node := range tree {
		indent := strings.Repeat("  ", node.Depth)
		label := node.Category.Name
		if node.Ticker != "" {
			label = fmt.Sprintf("%s [%s]", label, node.Ticker)
		}
		fmt.Printf("%-40s %14.2f %14.2f %7.2f%%\n",
			indent+label, node.Balance, node.PlanBalance, node.PlanPctOfAccount*100)
	}
}

// findAccount matches by account name or by raw brokerage account number.
// Only the blake3 digest of the number is stored, so the raw input is hashed
// before comparison and never logged.
func findAccount(ctx context.Context, nameOrNumber string) (*data.Account, error) {
	accounts, err := data.LoadAccounts(ctx)
	if err != nil {
		return nil, err
	}
	hashed := common.HashAccountNumber(nameOrNumber)
	for _, acct := range accounts {
		if acct.Name == nameOrNumber || acct.AccountNumber == hashed {
			return acct, nil
		}
	}
	return nil, errors.New("no account with that name or number")
}

func buildRebalancer(ctx context.Context) (*allocation.Rebalancer, error) {
	cfg, err := category.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}

	funds, err := data.LoadFunds(ctx)
	if err != nil {
		return nil, err
	}
	tickers := make([]string, 0, len(funds))
	for _, f := range funds {
		tickers = append(tickers, f.Ticker)
	}
	prices, err := data.LoadPriceHistory(ctx, tickers)
	if err != nil {
		return nil, err
	}

	return allocation.NewRebalancer(position.NewPgxStore(), prices, cfg), nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	tags := strings.Split(s, ",")
	for i := range tags {
		tags[i] = strings.TrimSpace(tags[i])
	}
	return tags
}
