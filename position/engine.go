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
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/greenbriar/fundtrack/data"
	"github.com/greenbriar/fundtrack/observability/opentelemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// liquidationTolerance treats a running balance this close to zero as fully
// liquidated; emission is suspended for the fund until a transaction
// reactivates it.
const liquidationTolerance = 0.01

// PriceSource answers day-level price lookups from an immutable snapshot
// loaded once per reconstruction run.
type PriceSource interface {
	PriceOnOrBefore(ticker string, date time.Time) (*data.PriceRecord, error)
}

// Engine reconstructs the daily position series for each account from its
// transaction ledger and fund price history. Reconstruction is a strictly
// sequential fold per account/fund: each day's record carries the previous
// day's state forward.
type Engine struct {
	prices PriceSource
	ledger TransactionSource
	store  Store
	rule   CashRule
}

func NewEngine(prices PriceSource, ledger TransactionSource, store Store) *Engine {
	rule := CashRule{
		SettlementTicker: data.SettlementFund(),
		DividendType:     "Dividend",
		TransferPrefix:   "Transfer",
	}
	if v := viper.GetString("settlement.dividend_type"); v != "" {
		rule.DividendType = v
	}
	if v := viper.GetString("settlement.transfer_prefix"); v != "" {
		rule.TransferPrefix = v
	}

	return &Engine{
		prices: prices,
		ledger: ledger,
		store:  store,
		rule:   rule,
	}
}

// Update brings the position series of every account up to its transaction
// end date. With reload, all previously reconstructed records for the
// account set are discarded first and the series rebuilt from scratch.
// Accounts are independent: one account's failure is logged and does not
// abort the others. Returns the number of records written.
func (e *Engine) Update(ctx context.Context, accounts []*data.Account, reload bool) (int, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "position.Update")
	defer span.End()
	span.SetAttributes(
		attribute.Int("num_accounts", len(accounts)),
		attribute.Bool("reload", reload),
	)

	if reload {
		ids := make([]uuid.UUID, 0, len(accounts))
		for _, acct := range accounts {
			ids = append(ids, acct.ID)
			acct.SharesStartDate = time.Time{}
			acct.SharesEndDate = time.Time{}
		}
		if err := e.store.DeleteAccounts(ctx, ids); err != nil {
			log.Error().Stack().Err(err).Msg("could not delete position records for reload")
			return 0, err
		}
	}

	total := 0
	failed := 0
	for _, acct := range accounts {
		subLog := log.With().Str("Account", acct.Name).Str("Owner", acct.Owner).Logger()
		n, err := e.updateAccount(ctx, acct, subLog)
		if err != nil {
			subLog.Error().Stack().Err(err).Msg("skipping account due to reconstruction error")
			failed++
			continue
		}
		total += n
	}

	if failed > 0 {
		return total, fmt.Errorf("reconstruction failed for %d of %d accounts", failed, len(accounts))
	}
	return total, nil
}

// updateAccount reconstructs one account's incremental window and commits
// the new records as a unit.
func (e *Engine) updateAccount(ctx context.Context, acct *data.Account, subLog zerolog.Logger) (int, error) {
	if acct.TransactionEndDate.IsZero() {
		subLog.Warn().Msg("account has no transaction history; skipping")
		return 0, ErrNoTransactions
	}
	endDate := data.Midnight(acct.TransactionEndDate)

	var startDate time.Time
	startingShares := make(map[string]float64)

	lastDate, haveRecords, err := e.store.LatestDate(ctx, acct.ID)
	if err != nil {
		return 0, err
	}
	if haveRecords {
		if !lastDate.Equal(acct.SharesEndDate) {
			subLog.Error().Stack().Time("LastDate", lastDate).Time("SharesEndDate", acct.SharesEndDate).Msg("stored series does not match account bookkeeping")
			return 0, ErrSeriesOutOfSync
		}
		prior, err := e.store.RecordsOnDate(ctx, acct.ID, lastDate)
		if err != nil {
			return 0, err
		}
		for ticker, rec := range prior {
			startingShares[ticker] = rec.Shares
		}
		startDate = data.NextDay(lastDate)
	} else {
		startDate = data.Midnight(acct.TransactionStartDate)
	}

	subLog.Info().Time("StartDate", startDate).Time("EndDate", endDate).Msg("reconstructing position series")

	if startDate.After(endDate) {
		// nothing new; re-running with an unchanged window writes no records
		return 0, nil
	}

	trxs, err := e.ledger.Transactions(ctx, acct.ID, startDate)
	if err != nil {
		return 0, err
	}

	newRecords := make([]*Record, 0, 256)

	// Ordinary funds: group share-affecting transactions by ticker,
	// preserving trade-date order within each fund.
	byTicker := make(map[string][]*Transaction)
	for _, t := range trxs {
		if t.Ticker == "" || t.Ticker == e.rule.SettlementTicker || t.Shares == 0 {
			continue
		}
		byTicker[t.Ticker] = append(byTicker[t.Ticker], t)
	}

	tickers := make([]string, 0, len(byTicker))
	for ticker := range byTicker {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	for _, ticker := range tickers {
		recs, err := e.reconstructFund(acct, ticker, startingShares[ticker], byTicker[ticker], startDate, endDate)
		if err != nil {
			return 0, err
		}
		newRecords = append(newRecords, recs...)
	}

	// Funds held before the window with no new transactions still get a
	// record for every day in range.
	carried := make([]string, 0, len(startingShares))
	for ticker := range startingShares {
		carried = append(carried, ticker)
	}
	sort.Strings(carried)

	for _, ticker := range carried {
		shares := startingShares[ticker]
		if ticker == e.rule.SettlementTicker || len(byTicker[ticker]) > 0 || math.Abs(shares) <= liquidationTolerance {
			continue
		}
		recs, err := e.reconstructFund(acct, ticker, shares, nil, startDate, endDate)
		if err != nil {
			return 0, err
		}
		newRecords = append(newRecords, recs...)
	}

	// Settlement sleeve.
	recs, err := e.reconstructSettlement(acct, startingShares[e.rule.SettlementTicker], trxs, startDate, endDate)
	if err != nil {
		return 0, err
	}
	newRecords = append(newRecords, recs...)

	if err := e.store.SaveAll(ctx, acct.ID, newRecords); err != nil {
		return 0, err
	}

	if acct.SharesStartDate.IsZero() {
		acct.SharesStartDate = startDate
	}
	acct.SharesEndDate = endDate

	subLog.Info().Int("NumRecords", len(newRecords)).Msg("position series reconstructed")
	return len(newRecords), nil
}

// reconstructFund folds one ordinary fund's transactions into daily records.
// While the running balance is within the liquidation tolerance of zero no
// records are emitted; emission resumes at the reactivating transaction's
// trade date.
func (e *Engine) reconstructFund(acct *data.Account, ticker string, shares float64, trxs []*Transaction, startDate time.Time, endDate time.Time) ([]*Record, error) {
	recs := make([]*Record, 0, 64)
	next := startDate

	emit := func(date time.Time) error {
		if shares < 0 {
			log.Error().Stack().Str("Account", acct.Name).Str("Ticker", ticker).Time("Date", date).Float64("Shares", shares).Msg("reconstructed share balance is negative")
			return ErrNegativeBalance
		}
		price, err := e.prices.PriceOnOrBefore(ticker, date)
		if err != nil {
			log.Error().Stack().Err(err).Str("Ticker", ticker).Time("Date", date).Msg("missing price data during reconstruction")
			return err
		}
		rec := &Record{
			AccountID:  acct.ID,
			Ticker:     ticker,
			Date:       date,
			Shares:     shares,
			SharePrice: price.Close,
			Balance:    shares * price.Close,
			PctOfPeak:  price.PctOfPeak(),
			PeakDate:   price.PeakDate,
		}
		if pct, ok := price.PctOfTrough(); ok {
			rec.PctOfTrough = pct
			rec.TroughDate = price.TroughDate
		}
		recs = append(recs, rec)
		return nil
	}

	for _, t := range trxs {
		if math.Abs(shares) > liquidationTolerance {
			for next.Before(t.TradeDate) {
				if err := emit(next); err != nil {
					return nil, err
				}
				next = data.NextDay(next)
			}
		} else {
			next = t.TradeDate
		}
		shares += t.Shares
	}

	if math.Abs(shares) > liquidationTolerance {
		for !next.After(endDate) {
			if err := emit(next); err != nil {
				return nil, err
			}
			next = data.NextDay(next)
		}
	}

	return recs, nil
}

// reconstructSettlement accrues the cash-equivalent sleeve. Every day in
// range gets a record, valued at 1.0 per unit with no price lookup.
func (e *Engine) reconstructSettlement(acct *data.Account, shares float64, trxs []*Transaction, startDate time.Time, endDate time.Time) ([]*Record, error) {
	recs := make([]*Record, 0, 64)
	next := startDate

	emit := func(date time.Time) error {
		if shares < 0 {
			log.Error().Stack().Str("Account", acct.Name).Str("Ticker", e.rule.SettlementTicker).Time("Date", date).Float64("Shares", shares).Msg("settlement sleeve balance is negative")
			return ErrNegativeBalance
		}
		recs = append(recs, &Record{
			AccountID:  acct.ID,
			Ticker:     e.rule.SettlementTicker,
			Date:       date,
			Shares:     shares,
			SharePrice: 1.0,
			Balance:    shares,
			PctOfPeak:  1.0,
			PeakDate:   date,
		})
		return nil
	}

	for _, t := range trxs {
		if !e.rule.Accrues(t) {
			continue
		}
		for next.Before(t.TradeDate) {
			if err := emit(next); err != nil {
				return nil, err
			}
			next = data.NextDay(next)
		}
		shares += t.NetAmount
	}

	for !next.After(endDate) {
		if err := emit(next); err != nil {
			return nil, err
		}
		next = data.NextDay(next)
	}

	return recs, nil
}
