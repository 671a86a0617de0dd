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
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Fund is immutable reference data for a tradeable fund
type Fund struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// Account identifies a brokerage account owned by a user. AccountNumber holds
// the hashed form of the brokerage account number, never the raw value.
type Account struct {
	ID            uuid.UUID
	Owner         string
	Name          string
	AccountNumber string

	// Root of the category tree used for allocation; zero when unassigned
	CategoryRoot int64

	// First and last trade dates present in the transaction ledger
	TransactionStartDate time.Time
	TransactionEndDate   time.Time

	// First and last dates covered by reconstructed position records
	SharesStartDate time.Time
	SharesEndDate   time.Time

	RebalanceDate time.Time
}

// SettlementFund returns the ticker of the cash-equivalent settlement sleeve.
// The settlement fund has no market price history; it is always valued at 1.0.
func SettlementFund() string {
	if t := viper.GetString("settlement.ticker"); t != "" {
		return t
	}
	return "VMFXX"
}

// FundRegistry caches Fund reference rows by ticker. Transactions referencing
// an unknown ticker auto-create a minimal Fund; this is a policy decision so
// ingestion never stalls on missing reference data.
type FundRegistry struct {
	byTicker map[string]*Fund
}

func NewFundRegistry(funds []*Fund) *FundRegistry {
	r := &FundRegistry{
		byTicker: make(map[string]*Fund, len(funds)),
	}
	for _, f := range funds {
		r.byTicker[f.Ticker] = f
	}
	return r
}

func (r *FundRegistry) Get(ticker string) (*Fund, error) {
	if f, ok := r.byTicker[ticker]; ok {
		return f, nil
	}
	return nil, ErrUnknownFund
}

// Ensure returns the Fund for ticker, creating a minimal record when none
// exists yet.
func (r *FundRegistry) Ensure(ticker string, name string) *Fund {
	if f, ok := r.byTicker[ticker]; ok {
		return f
	}
	log.Warn().Str("Ticker", ticker).Str("Name", name).Msg("creating fund for unknown ticker")
	f := &Fund{
		Ticker: ticker,
		Name:   name,
	}
	r.byTicker[ticker] = f
	return f
}

func (r *FundRegistry) Funds() []*Fund {
	funds := make([]*Fund, 0, len(r.byTicker))
	for _, f := range r.byTicker {
		funds = append(funds, f)
	}
	return funds
}
