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
	"strings"

	"github.com/greenbriar/fundtrack/common"
	"github.com/greenbriar/fundtrack/data"
	"github.com/greenbriar/fundtrack/database"
	"github.com/greenbriar/fundtrack/observability/opentelemetry"
	"github.com/greenbriar/fundtrack/position"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	updReload   bool
	updAccounts string
	updDaemon   bool
)

func init() {
	updateCmd.Flags().BoolVar(&updReload, "reload", false, "Discard all reconstructed positions and rebuild from scratch")
	updateCmd.Flags().StringVar(&updAccounts, "accounts", "", "Comma separated account names to update; blank updates all")
	updateCmd.Flags().BoolVar(&updDaemon, "daemon", false, "Keep running and update on the configured schedule")
	updateCmd.Flags().String("schedule", "18:30", "Daily run time (HH:MM, exchange timezone) when running as a daemon")
	viper.BindPFlag("update.schedule", updateCmd.Flags().Lookup("schedule"))
	rootCmd.AddCommand(updateCmd)
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Reconstruct the daily position series for each account",
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		common.SetupCache()
		log.Info().Msg("initialized logging")

		shutdown, err := opentelemetry.Setup()
		if err != nil {
			log.Warn().Err(err).Msg("could not initialize tracing; continuing without it")
		}

		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}

		if updDaemon {
			if shutdown != nil {
				defer func() {
					if err := shutdown(ctx); err != nil {
						log.Warn().Err(err).Msg("could not flush traces")
					}
				}()
			}
			tz := common.GetTimezone()
			scheduler := gocron.NewScheduler(tz)
			scheduler.Every(1).Day().At(viper.GetString("update.schedule")).Do(func() {
				if err := runUpdate(ctx); err != nil {
					log.Error().Stack().Err(err).Msg("scheduled update failed")
				}
			})
			log.Info().Str("Schedule", viper.GetString("update.schedule")).Msg("starting update daemon")
			scheduler.StartBlocking()
			return
		}

		err = runUpdate(ctx)
		if shutdown != nil {
			if err := shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("could not flush traces")
			}
		}
		database.LogOpenTransactions()
		if err != nil {
			log.Fatal().Err(err).Msg("update failed")
		}
	},
}

func runUpdate(ctx context.Context) error {
	accounts, err := data.LoadAccounts(ctx)
	if err != nil {
		return err
	}
	accounts = filterAccounts(accounts, updAccounts)

	funds, err := data.LoadFunds(ctx)
	if err != nil {
		return err
	}
	registry := data.NewFundRegistry(funds)
	registry.Ensure(data.SettlementFund(), "Settlement fund")

	funds = registry.Funds()
	tickers := make([]string, 0, len(funds))
	for _, f := range funds {
		tickers = append(tickers, f.Ticker)
	}

	prices, err := data.LoadPriceHistory(ctx, tickers)
	if err != nil {
		return err
	}

	engine := position.NewEngine(prices, position.NewPgxLedger(), position.NewPgxStore())

	log.Info().Int("NumAccounts", len(accounts)).Bool("Reload", updReload).Msg("updating account positions")
	count, updateErr := engine.Update(ctx, accounts, updReload)
	log.Info().Int("RecordsWritten", count).Msg("position update finished")

	// Persist the moved series windows even when some accounts failed;
	// those accounts' windows were not touched.
	for _, acct := range accounts {
		if err := data.SaveShareDates(ctx, acct); err != nil {
			log.Error().Stack().Err(err).Str("Account", acct.Name).Msg("could not persist share dates")
		}
	}

	return updateErr
}

func filterAccounts(accounts []*data.Account, filter string) []*data.Account {
	if filter == "" {
		return accounts
	}
	wanted := make(map[string]bool)
	for _, name := range strings.Split(filter, ",") {
		wanted[strings.TrimSpace(name)] = true
	}
	kept := make([]*data.Account, 0, len(accounts))
	for _, acct := range accounts {
		if wanted[acct.Name] {
			kept = append(kept, acct)
		}
	}
	return kept
}
