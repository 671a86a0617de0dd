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
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
)

// Transaction is one brokerage ledger row, already parsed and deduplicated
// by the ingestion collaborator. Ticker is empty for the designated cash
// transaction rows, which never affect share accounting.
type Transaction struct {
	ID             uuid.UUID
	SourceID       string
	AccountID      uuid.UUID
	TradeDate      time.Time
	SettlementDate time.Time
	Kind           string
	Description    string
	InvestmentName string
	Ticker         string
	Shares         float64
	SharePrice     float64
	Principal      float64
	Commission     float64
	NetAmount      float64
	AccruedInt     float64
	AccountType    string
}

// ComputeSourceID derives a stable content hash for deduplication across
// repeated vendor exports.
func (t *Transaction) ComputeSourceID() error {
	h := blake3.New()

	d, err := t.TradeDate.UTC().MarshalText()
	if err != nil {
		return err
	}

	if _, err := h.Write(d); err != nil {
		log.Error().Stack().Err(err).Msg("could not write trade date to blake3 hasher")
		return err
	}

	for _, field := range []string{t.AccountID.String(), t.Ticker, t.Kind, t.InvestmentName} {
		if _, err := h.Write([]byte(field)); err != nil {
			log.Error().Stack().Err(err).Msg("could not write field to blake3 hasher")
			return err
		}
	}

	if _, err := h.Write([]byte(fmt.Sprintf("%.5f|%.5f", t.Shares, t.NetAmount))); err != nil {
		log.Error().Stack().Err(err).Msg("could not write amounts to blake3 hasher")
		return err
	}

	digest := h.Sum(nil)
	t.SourceID = hex.EncodeToString(digest)
	return nil
}

// CashRule decides which ledger rows accrue into the settlement sleeve. The
// vendor reports the settlement fund's own balance only implicitly: cash
// rows, dividends paid by the settlement fund, and the cash side of every
// non-transfer trade in other funds all flow through it.
type CashRule struct {
	SettlementTicker string
	DividendType     string
	TransferPrefix   string
}

// Accrues reports whether t's NetAmount accrues to the settlement sleeve.
func (r CashRule) Accrues(t *Transaction) bool {
	if t.NetAmount == 0 {
		return false
	}
	if t.Ticker == "" {
		return true
	}
	if t.Ticker == r.SettlementTicker {
		return t.Kind == r.DividendType
	}
	return !strings.HasPrefix(t.Kind, r.TransferPrefix)
}
