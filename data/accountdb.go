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

package data

import (
	"context"

	"github.com/greenbriar/fundtrack/database"
	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"
)

// LoadAccounts reads every account row. Bookkeeping date columns and the
// category root are nullable; a fresh account has no reconstructed series
// yet and possibly no tree assignment.
func LoadAccounts(ctx context.Context) ([]*Account, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := trx.Query(ctx,
		`SELECT id, owner, name, account_number, category_root,
		        transaction_start_date, transaction_end_date,
		        shares_start_date, shares_end_date, rebalance_date
		 FROM accounts ORDER BY owner, name`)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not query accounts")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	accounts := make([]*Account, 0, 16)
	for rows.Next() {
		acct := &Account{}
		var categoryRoot pgtype.Int8
		var dates [5]pgtype.Date
		if err := rows.Scan(&acct.ID, &acct.Owner, &acct.Name, &acct.AccountNumber, &categoryRoot,
			&dates[0], &dates[1], &dates[2], &dates[3], &dates[4]); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan account row")
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		if categoryRoot.Status == pgtype.Present {
			acct.CategoryRoot = categoryRoot.Int
		}
		for i, target := range []*pgtype.Date{&dates[0], &dates[1], &dates[2], &dates[3], &dates[4]} {
			if target.Status != pgtype.Present {
				continue
			}
			switch i {
			case 0:
				acct.TransactionStartDate = Midnight(target.Time)
			case 1:
				acct.TransactionEndDate = Midnight(target.Time)
			case 2:
				acct.SharesStartDate = Midnight(target.Time)
			case 3:
				acct.SharesEndDate = Midnight(target.Time)
			case 4:
				acct.RebalanceDate = Midnight(target.Time)
			}
		}
		accounts = append(accounts, acct)
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return accounts, nil
}

// SaveShareDates persists the reconstructed-series window after an update
// run moves it.
func SaveShareDates(ctx context.Context, acct *Account) error {
	trx, err := database.Trx(ctx)
	if err != nil {
		return err
	}

	start := pgtype.Date{Status: pgtype.Null}
	if !acct.SharesStartDate.IsZero() {
		start = pgtype.Date{Time: acct.SharesStartDate, Status: pgtype.Present}
	}
	end := pgtype.Date{Status: pgtype.Null}
	if !acct.SharesEndDate.IsZero() {
		end = pgtype.Date{Time: acct.SharesEndDate, Status: pgtype.Present}
	}

	_, err = trx.Exec(ctx,
		`UPDATE accounts SET shares_start_date=$1, shares_end_date=$2 WHERE id=$3`,
		start, end, acct.ID)
	if err != nil {
		log.Error().Stack().Err(err).Str("AccountID", acct.ID.String()).Msg("could not update account share dates")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit account share dates")
		return err
	}
	return nil
}
