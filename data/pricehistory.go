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
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const defaultMaxGapDays = 5

// PriceRecord is one fund/day closing price together with the running
// peak-to-date and the trough since that peak. TroughDate is the zero value
// while no close below the peak has been recorded.
type PriceRecord struct {
	Ticker      string    `json:"ticker"`
	Date        time.Time `json:"date"`
	Close       float64   `json:"close"`
	PeakClose   float64   `json:"peakClose"`
	PeakDate    time.Time `json:"peakDate"`
	TroughClose float64   `json:"troughClose"`
	TroughDate  time.Time `json:"troughDate"`
}

func (r *PriceRecord) HasTrough() bool {
	return !r.TroughDate.IsZero()
}

// PctOfPeak is the ratio of the running peak to this day's close
func (r *PriceRecord) PctOfPeak() float64 {
	return r.PeakClose / r.Close
}

// PctOfTrough is the ratio of the running trough to this day's close; ok is
// false when no trough has been recorded since the last peak
func (r *PriceRecord) PctOfTrough() (float64, bool) {
	if !r.HasTrough() {
		return 0, false
	}
	return r.TroughClose / r.Close, true
}

// PriceHistory holds per-fund daily close series with incrementally
// maintained drawdown watermarks. Series are appended in date order; a run
// reads from it as an immutable snapshot.
type PriceHistory struct {
	maxGap int
	series map[string][]*PriceRecord
}

func NewPriceHistory() *PriceHistory {
	maxGap := viper.GetInt("price.max_gap_days")
	if maxGap <= 0 {
		maxGap = defaultMaxGapDays
	}
	return &PriceHistory{
		maxGap: maxGap,
		series: make(map[string][]*PriceRecord),
	}
}

// Upsert appends a close for ticker. Dates must be non-decreasing per
// ticker; a repeated date replaces the previous close for that date (vendors
// occasionally send the same day twice and the last row wins). An
// out-of-order date is rejected.
func (h *PriceHistory) Upsert(ticker string, date time.Time, close float64) (*PriceRecord, error) {
	date = Midnight(date)
	s := h.series[ticker]

	var prev *PriceRecord
	if n := len(s); n > 0 {
		last := s[n-1]
		switch {
		case date.Before(last.Date):
			log.Error().Stack().Str("Ticker", ticker).Time("Date", date).Time("LastDate", last.Date).Msg("price arrived out of date order")
			return nil, ErrOutOfOrderPrice
		case date.Equal(last.Date):
			log.Warn().Str("Ticker", ticker).Time("Date", date).Float64("OldClose", last.Close).Float64("NewClose", close).Msg("duplicate price date; last write wins")
			s = s[:n-1]
			if len(s) > 0 {
				prev = s[len(s)-1]
			}
		default:
			prev = last
		}
	}

	rec := &PriceRecord{
		Ticker: ticker,
		Date:   date,
		Close:  close,
	}

	if prev == nil || close > prev.PeakClose {
		// new peak clears the trough
		rec.PeakClose = close
		rec.PeakDate = date
	} else {
		rec.PeakClose = prev.PeakClose
		rec.PeakDate = prev.PeakDate
		if !prev.HasTrough() || close < prev.TroughClose {
			rec.TroughClose = close
			rec.TroughDate = date
		} else {
			rec.TroughClose = prev.TroughClose
			rec.TroughDate = prev.TroughDate
		}
	}

	h.series[ticker] = append(s, rec)
	return rec, nil
}

// Install replaces the series for ticker with records that already carry
// their watermarks (e.g. loaded from the database or the cache). Records must
// be sorted by date.
func (h *PriceHistory) Install(ticker string, recs []*PriceRecord) {
	h.series[ticker] = recs
}

func (h *PriceHistory) Records(ticker string) []*PriceRecord {
	return h.series[ticker]
}

func (h *PriceHistory) Tickers() []string {
	tickers := make([]string, 0, len(h.series))
	for t := range h.series {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

func (h *PriceHistory) Latest(ticker string) (*PriceRecord, bool) {
	s := h.series[ticker]
	if len(s) == 0 {
		return nil, false
	}
	return s[len(s)-1], true
}

// PriceOnOrBefore returns the latest record with a date on or before `date`,
// looking back at most the configured maximum gap. The settlement fund is
// always valued at 1.0 and never consults the series. ErrNoPriceData marks a
// genuine gap in market data, not a normal carry-forward.
func (h *PriceHistory) PriceOnOrBefore(ticker string, date time.Time) (*PriceRecord, error) {
	date = Midnight(date)

	if ticker == SettlementFund() {
		return &PriceRecord{
			Ticker:    ticker,
			Date:      date,
			Close:     1.0,
			PeakClose: 1.0,
			PeakDate:  date,
		}, nil
	}

	s := h.series[ticker]
	// first index after date
	idx := sort.Search(len(s), func(i int) bool {
		return s[i].Date.After(date)
	})
	if idx == 0 {
		return nil, ErrNoPriceData
	}

	rec := s[idx-1]
	if DaysApart(rec.Date, date) > h.maxGap {
		log.Warn().Str("Ticker", ticker).Time("Date", date).Time("LastPriceDate", rec.Date).Int("MaxGapDays", h.maxGap).Msg("price gap exceeds lookback bound")
		return nil, ErrNoPriceData
	}
	return rec, nil
}
