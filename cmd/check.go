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
	"sort"

	"github.com/greenbriar/fundtrack/category"
	"github.com/greenbriar/fundtrack/common"
	"github.com/greenbriar/fundtrack/data"
	"github.com/greenbriar/fundtrack/database"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check every account's category tree for cycles and unlinked categories",
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()

		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}

		cfg, err := category.LoadConfig(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not load allocation configuration")
		}
		accounts, err := data.LoadAccounts(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not load accounts")
		}

		reached := make(map[int64]bool)
		badTrees := 0
		for _, acct := range accounts {
			if acct.CategoryRoot == 0 {
				continue
			}
			log.Info().Str("Account", acct.Name).Int64("CategoryRoot", acct.CategoryRoot).Msg("checking tree structure")
			visited, cycles := category.CheckStructure(cfg, acct.CategoryRoot)
			for id := range visited {
				reached[id] = true
			}
			if len(cycles) > 0 {
				badTrees++
				for _, cycle := range cycles {
					fmt.Printf("%s: cycle %v\n", acct.Name, cycle)
				}
			}
		}

		unlinked := make([]int64, 0)
		for id := range cfg.Categories {
			if !reached[id] {
				unlinked = append(unlinked, id)
			}
		}
		sort.Slice(unlinked, func(i, j int) bool { return unlinked[i] < unlinked[j] })
		for _, id := range unlinked {
			fmt.Printf("unlinked category %d (%s)\n", id, cfg.Categories[id].Name)
		}

		if badTrees > 0 {
			os.Exit(1)
		}
		fmt.Println("category checks complete")
	},
}
