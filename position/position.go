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
)

// Record is the reconstructed daily position for one account/fund/date.
// Exactly one record exists per (account, fund, date) within the account's
// covered range; the whole series is derived state, fully regenerable from
// the transaction ledger and price history.
type Record struct {
	AccountID  uuid.UUID
	Ticker     string
	Date       time.Time
	Shares     float64
	SharePrice float64
	Balance    float64

	// Drawdown watermarks carried over from the day's price record,
	// expressed as ratios of that day's close (and therefore of Balance).
	PctOfPeak   float64
	PeakDate    time.Time
	PctOfTrough float64
	TroughDate  time.Time
}

func (r *Record) HasTrough() bool {
	return !r.TroughDate.IsZero()
}

// SharesOnDate returns the account's position records keyed by ticker for
// one day, or an empty map when the date falls outside the reconstructed
// range.
func SharesOnDate(ctx context.Context, store Store, acct *data.Account, date time.Time) (map[string]*Record, error) {
	date = data.Midnight(date)
	if acct.SharesStartDate.IsZero() || date.Before(acct.SharesStartDate) || date.After(acct.SharesEndDate) {
		return map[string]*Record{}, nil
	}
	return store.RecordsOnDate(ctx, acct.ID, date)
}

// BalanceOnDate sums the account's fund balances for one day.
func BalanceOnDate(ctx context.Context, store Store, acct *data.Account, date time.Time) (float64, error) {
	recs, err := SharesOnDate(ctx, store, acct, date)
	if err != nil {
		return 0, err
	}

	var balance float64
	for _, rec := range recs {
		balance += rec.Balance
	}
	return balance, nil
}
