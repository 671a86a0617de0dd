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

package position

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/greenbriar/fundtrack/data"
	"github.com/greenbriar/fundtrack/database"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"
)

// PgxStore persists position records in the account_shares table. The table
// carries a unique constraint on (account_id, ticker, event_date) which
// backs the one-record-per-day invariant.
type PgxStore struct{}

func NewPgxStore() *PgxStore {
	return &PgxStore{}
}

func (s *PgxStore) LatestDate(ctx context.Context, accountID uuid.UUID) (time.Time, bool, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return time.Time{}, false, err
	}

	var latest pgtype.Date
	err = trx.QueryRow(ctx,
		`SELECT MAX(event_date) FROM account_shares WHERE account_id=$1`, accountID).Scan(&latest)
	if err != nil {
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		if err == pgx.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}

	if latest.Status != pgtype.Present {
		return time.Time{}, false, nil
	}
	return data.Midnight(latest.Time), true, nil
}

func (s *PgxStore) RecordsOnDate(ctx context.Context, accountID uuid.UUID, date time.Time) (map[string]*Record, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := trx.Query(ctx,
		`SELECT ticker, shares, share_price, balance, pct_of_peak, peak_date, pct_of_trough, trough_date
		 FROM account_shares WHERE account_id=$1 AND event_date=$2`, accountID, date)
	if err != nil {
		log.Error().Stack().Err(err).Time("Date", date).Msg("could not query account shares")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	recs := make(map[string]*Record)
	for rows.Next() {
		rec := &Record{
			AccountID: accountID,
			Date:      data.Midnight(date),
		}
		var pctOfTrough pgtype.Float8
		var troughDate pgtype.Date
		if err := rows.Scan(&rec.Ticker, &rec.Shares, &rec.SharePrice, &rec.Balance, &rec.PctOfPeak, &rec.PeakDate, &pctOfTrough, &troughDate); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan account share row")
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		if pctOfTrough.Status == pgtype.Present {
			rec.PctOfTrough = pctOfTrough.Float
		}
		if troughDate.Status == pgtype.Present {
			rec.TroughDate = data.Midnight(troughDate.Time)
		}
		recs[rec.Ticker] = rec
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return recs, nil
}

// SaveAll writes the batch inside one database transaction; any failure
// rolls back the entire batch.
func (s *PgxStore) SaveAll(ctx context.Context, accountID uuid.UUID, recs []*Record) error {
	trx, err := database.Trx(ctx)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		var pctOfTrough pgtype.Float8
		var troughDate pgtype.Date
		if rec.HasTrough() {
			pctOfTrough = pgtype.Float8{Float: rec.PctOfTrough, Status: pgtype.Present}
			troughDate = pgtype.Date{Time: rec.TroughDate, Status: pgtype.Present}
		} else {
			pctOfTrough = pgtype.Float8{Status: pgtype.Null}
			troughDate = pgtype.Date{Status: pgtype.Null}
		}

		_, err := trx.Exec(ctx,
			`INSERT INTO account_shares (account_id, ticker, event_date, shares, share_price, balance, pct_of_peak, peak_date, pct_of_trough, trough_date)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			accountID, rec.Ticker, rec.Date, rec.Shares, rec.SharePrice, rec.Balance, rec.PctOfPeak, rec.PeakDate, pctOfTrough, troughDate)
		if err != nil {
			log.Error().Stack().Err(err).Str("Ticker", rec.Ticker).Time("Date", rec.Date).Msg("could not insert account share row")
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return err
		}
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit account shares")
		return err
	}
	return nil
}

func (s *PgxStore) DeleteAccounts(ctx context.Context, accountIDs []uuid.UUID) error {
	trx, err := database.Trx(ctx)
	if err != nil {
		return err
	}

	for _, id := range accountIDs {
		if _, err := trx.Exec(ctx, `DELETE FROM account_shares WHERE account_id=$1`, id); err != nil {
			log.Error().Stack().Err(err).Str("AccountID", id.String()).Msg("could not delete account shares")
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return err
		}
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit account share deletion")
		return err
	}
	return nil
}

// PgxLedger reads the transaction ledger from the transactions table.
type PgxLedger struct{}

func NewPgxLedger() *PgxLedger {
	return &PgxLedger{}
}

func (l *PgxLedger) Transactions(ctx context.Context, accountID uuid.UUID, from time.Time) ([]*Transaction, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := trx.Query(ctx,
		`SELECT id, source_id, trade_date, settlement_date, kind, description, investment_name, ticker,
		        shares, share_price, principal, commission, net_amount, accrued_interest, account_type
		 FROM transactions WHERE account_id=$1 AND trade_date >= $2 ORDER BY trade_date ASC, id ASC`,
		accountID, from)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not query transactions")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	trxs := make([]*Transaction, 0, 256)
	for rows.Next() {
		t := &Transaction{AccountID: accountID}
		var ticker pgtype.Text
		if err := rows.Scan(&t.ID, &t.SourceID, &t.TradeDate, &t.SettlementDate, &t.Kind, &t.Description, &t.InvestmentName, &ticker,
			&t.Shares, &t.SharePrice, &t.Principal, &t.Commission, &t.NetAmount, &t.AccruedInt, &t.AccountType); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan transaction row")
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		if ticker.Status == pgtype.Present {
			t.Ticker = ticker.String
		}
		t.TradeDate = data.Midnight(t.TradeDate)
		trxs = append(trxs, t)
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return trxs, nil
}
