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
	"sort"
	"time"

	"github.com/greenbriar/fundtrack/common"
	"github.com/greenbriar/fundtrack/data"
	"github.com/greenbriar/fundtrack/database"
	"github.com/greenbriar/fundtrack/position"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var balanceDate string

func init() {
	balanceCmd.Flags().StringVar(&balanceDate, "date", "", "Date as YYYY-MM-dd; defaults to the account's last reconstructed date")
	rootCmd.AddCommand(balanceCmd)
}

var balanceCmd = &cobra.Command{
	Use:   "balance <account-name>",
	Short: "Show an account's per-fund shares and balance on a date",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()

		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}

		acct, err := findAccount(ctx, args[0])
		if err != nil {
			log.Fatal().Err(err).Str("Account", args[0]).Msg("could not find account")
		}

		date := acct.SharesEndDate
		if balanceDate != "" {
			date, err = time.Parse("2006-01-02", balanceDate)
			if err != nil {
				log.Fatal().Err(err).Str("InputStr", balanceDate).Msg("could not parse date - expected format 2006-01-02")
			}
		}
		if date.IsZero() {
			log.Fatal().Msg("account has no reconstructed positions; run `fundtrack update` first")
		}
		date = data.Midnight(date)

		store := position.NewPgxStore()
		recs, err := position.SharesOnDate(ctx, store, acct, date)
		if err != nil {
			log.Fatal().Err(err).Msg("could not load positions")
		}
		if len(recs) == 0 {
			log.Fatal().Time("Date", date).Time("SharesStartDate", acct.SharesStartDate).
				Time("SharesEndDate", acct.SharesEndDate).Msg("date is outside the account's reconstructed window")
		}

		funds, err := data.LoadFunds(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not load funds")
		}
		registry := data.NewFundRegistry(funds)

		tickers := make([]string, 0, len(recs))
		for ticker := range recs {
			tickers = append(tickers, ticker)
		}
		sort.Strings(tickers)

		total := 0.0
		fmt.Printf("%s positions on %s\n\n", acct.Name, date.Format("2006-01-02"))
		for _, ticker := range tickers {
			rec := recs[ticker]
			name := ""
			if fund, err := registry.Get(ticker); err == nil {
				name = fund.Name
			}
			fmt.Printf("%-8s %-32s %14.4f %10.2f %14.2f\n", ticker, name, rec.Shares, rec.SharePrice, rec.Balance)
			total += rec.Balance
		}
		fmt.Printf("\n%-8s %73.2f\n", "TOTAL", total)
	},
}
