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
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/greenbriar/fundtrack/data"
)

// TransactionSource supplies ledger rows for one account ordered by
// ascending trade date, starting at `from`. Reads are immutable with respect
// to a reconstruction run.
type TransactionSource interface {
	Transactions(ctx context.Context, accountID uuid.UUID, from time.Time) ([]*Transaction, error)
}

// Store persists reconstructed position records. SaveAll must be atomic per
// call: either every record commits or none does, so an interrupted rebuild
// cannot leave date gaps in a fund's series.
type Store interface {
	LatestDate(ctx context.Context, accountID uuid.UUID) (time.Time, bool, error)
	RecordsOnDate(ctx context.Context, accountID uuid.UUID, date time.Time) (map[string]*Record, error)
	SaveAll(ctx context.Context, accountID uuid.UUID, recs []*Record) error
	DeleteAccounts(ctx context.Context, accountIDs []uuid.UUID) error
}

type recordKey struct {
	ticker string
	date   time.Time
}

// MemoryStore keeps position records in process. Used by tests and by
// one-shot rebalance runs that never touch the database.
type MemoryStore struct {
	records map[uuid.UUID]map[recordKey]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uuid.UUID]map[recordKey]*Record),
	}
}

func (s *MemoryStore) LatestDate(_ context.Context, accountID uuid.UUID) (time.Time, bool, error) {
	var latest time.Time
	found := false
	for key := range s.records[accountID] {
		if !found || key.date.After(latest) {
			latest = key.date
			found = true
		}
	}
	return latest, found, nil
}

func (s *MemoryStore) RecordsOnDate(_ context.Context, accountID uuid.UUID, date time.Time) (map[string]*Record, error) {
	date = data.Midnight(date)
	recs := make(map[string]*Record)
	for key, rec := range s.records[accountID] {
		if key.date.Equal(date) {
			recs[key.ticker] = rec
		}
	}
	return recs, nil
}

// SaveAll validates the uniqueness invariant over the whole batch before
// inserting anything, so a violation commits nothing.
func (s *MemoryStore) SaveAll(_ context.Context, accountID uuid.UUID, recs []*Record) error {
	existing := s.records[accountID]
	if existing == nil {
		existing = make(map[recordKey]*Record)
		s.records[accountID] = existing
	}

	seen := make(map[recordKey]bool, len(recs))
	for _, rec := range recs {
		key := recordKey{ticker: rec.Ticker, date: rec.Date}
		if _, ok := existing[key]; ok {
			return ErrDuplicateRecord
		}
		if seen[key] {
			return ErrDuplicateRecord
		}
		seen[key] = true
	}

	for _, rec := range recs {
		existing[recordKey{ticker: rec.Ticker, date: rec.Date}] = rec
	}
	return nil
}

func (s *MemoryStore) DeleteAccounts(_ context.Context, accountIDs []uuid.UUID) error {
	for _, id := range accountIDs {
		delete(s.records, id)
	}
	return nil
}

// Count returns the total number of stored records for an account.
func (s *MemoryStore) Count(accountID uuid.UUID) int {
	return len(s.records[accountID])
}

// Series returns the date-ordered records for one account/fund.
func (s *MemoryStore) Series(accountID uuid.UUID, ticker string) []*Record {
	recs := make([]*Record, 0, 64)
	for key, rec := range s.records[accountID] {
		if key.ticker == ticker {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Date.Before(recs[j].Date)
	})
	return recs
}

// MemoryLedger is an in-process TransactionSource.
type MemoryLedger struct {
	transactions map[uuid.UUID][]*Transaction
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		transactions: make(map[uuid.UUID][]*Transaction),
	}
}

func (l *MemoryLedger) Add(trxs ...*Transaction) {
	for _, t := range trxs {
		t.TradeDate = data.Midnight(t.TradeDate)
		l.transactions[t.AccountID] = append(l.transactions[t.AccountID], t)
	}
}

func (l *MemoryLedger) Transactions(_ context.Context, accountID uuid.UUID, from time.Time) ([]*Transaction, error) {
	recs := make([]*Transaction, 0, len(l.transactions[accountID]))
	for _, t := range l.transactions[accountID] {
		if !t.TradeDate.Before(from) {
			recs = append(recs, t)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].TradeDate.Before(recs[j].TradeDate)
	})
	return recs, nil
}
