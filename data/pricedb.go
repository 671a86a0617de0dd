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
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/greenbriar/fundtrack/common"
	"github.com/greenbriar/fundtrack/database"
	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"
)

func priceCacheKey(ticker string) string {
	return fmt.Sprintf("fundtrack:prices:%s", ticker)
}

// LoadPriceHistory builds an immutable price snapshot for the requested
// tickers, consulting the byte cache before the database. The snapshot is
// loaded once per reconstruction run; per-day lookups never re-query.
func LoadPriceHistory(ctx context.Context, tickers []string) (*PriceHistory, error) {
	history := NewPriceHistory()

	for _, ticker := range tickers {
		if ticker == SettlementFund() {
			continue
		}

		if raw, err := common.CacheGet(priceCacheKey(ticker)); err == nil && len(raw) > 0 {
			var recs []*PriceRecord
			if err := json.Unmarshal(raw, &recs); err == nil {
				history.Install(ticker, recs)
				continue
			}
			log.Warn().Str("Ticker", ticker).Msg("could not decode cached price series; falling back to database")
		}

		recs, err := loadPriceSeries(ctx, ticker)
		if err != nil {
			return nil, err
		}
		history.Install(ticker, recs)

		if raw, err := json.Marshal(recs); err == nil {
			if err := common.CacheSet(priceCacheKey(ticker), raw); err != nil {
				log.Warn().Err(err).Str("Ticker", ticker).Msg("could not cache price series")
			}
		}
	}

	return history, nil
}

func loadPriceSeries(ctx context.Context, ticker string) ([]*PriceRecord, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not begin transaction for price load")
		return nil, err
	}

	rows, err := trx.Query(ctx,
		`SELECT event_date, close, peak_close, peak_date, trough_close, trough_date
		 FROM fund_prices WHERE ticker=$1 ORDER BY event_date ASC`, ticker)
	if err != nil {
		log.Error().Stack().Err(err).Str("Ticker", ticker).Msg("could not query fund prices")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	recs := make([]*PriceRecord, 0, 252)
	for rows.Next() {
		var eventDate time.Time
		var close float64
		var peakClose float64
		var peakDate time.Time
		var troughClose pgtype.Float8
		var troughDate pgtype.Date

		if err := rows.Scan(&eventDate, &close, &peakClose, &peakDate, &troughClose, &troughDate); err != nil {
			log.Error().Stack().Err(err).Str("Ticker", ticker).Msg("could not scan fund price row")
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}

		rec := &PriceRecord{
			Ticker:    ticker,
			Date:      Midnight(eventDate),
			Close:     close,
			PeakClose: peakClose,
			PeakDate:  Midnight(peakDate),
		}
		if troughClose.Status == pgtype.Present {
			rec.TroughClose = troughClose.Float
		}
		if troughDate.Status == pgtype.Present {
			rec.TroughDate = Midnight(troughDate.Time)
		}
		recs = append(recs, rec)
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}

	return recs, nil
}

// SavePriceSeries writes the full series for each ticker in a single
// transaction, replacing any previously stored rows for that ticker.
func SavePriceSeries(ctx context.Context, history *PriceHistory) error {
	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not begin transaction for price save")
		return err
	}

	for _, ticker := range history.Tickers() {
		if _, err := trx.Exec(ctx, `DELETE FROM fund_prices WHERE ticker=$1`, ticker); err != nil {
			log.Error().Stack().Err(err).Str("Ticker", ticker).Msg("could not clear fund prices")
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return err
		}

		for _, rec := range history.Records(ticker) {
			var troughClose pgtype.Float8
			var troughDate pgtype.Date
			if rec.HasTrough() {
				troughClose = pgtype.Float8{Float: rec.TroughClose, Status: pgtype.Present}
				troughDate = pgtype.Date{Time: rec.TroughDate, Status: pgtype.Present}
			} else {
				troughClose = pgtype.Float8{Status: pgtype.Null}
				troughDate = pgtype.Date{Status: pgtype.Null}
			}

			_, err := trx.Exec(ctx,
				`INSERT INTO fund_prices (ticker, event_date, close, peak_close, peak_date, trough_close, trough_date)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				ticker, rec.Date, rec.Close, rec.PeakClose, rec.PeakDate, troughClose, troughDate)
			if err != nil {
				log.Error().Stack().Err(err).Str("Ticker", ticker).Time("Date", rec.Date).Msg("could not insert fund price")
				if err := trx.Rollback(ctx); err != nil {
					log.Error().Stack().Err(err).Msg("could not rollback transaction")
				}
				return err
			}
		}
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit fund prices")
		return err
	}
	return nil
}
