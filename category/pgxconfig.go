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

package category

import (
	"context"

	"github.com/google/uuid"
	"github.com/greenbriar/fundtrack/database"
	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"
)

func scanScope(owner pgtype.Text, account pgtype.UUID, tag pgtype.Text) Scope {
	var s Scope
	if owner.Status == pgtype.Present {
		s.Owner = owner.String
	}
	if account.Status == pgtype.Present {
		s.Account = uuid.UUID(account.Bytes)
	}
	if tag.Status == pgtype.Present {
		s.Tag = tag.String
	}
	return s
}

// LoadConfig reads the full allocation configuration from the database. The
// result is immutable for the lifetime of a run.
func LoadConfig(ctx context.Context) (*Config, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not begin transaction for config load")
		return nil, err
	}

	rollback := func() {
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
	}

	cfg := NewConfig()

	rows, err := trx.Query(ctx, `SELECT id, name FROM categories`)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not query categories")
		rollback()
		return nil, err
	}
	for rows.Next() {
		cat := &Category{}
		if err := rows.Scan(&cat.ID, &cat.Name); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan category row")
			rollback()
			return nil, err
		}
		cfg.Categories[cat.ID] = cat
	}

	rows, err = trx.Query(ctx,
		`SELECT parent_id, child_id, link_order, owner, account_id, tag
		 FROM category_links ORDER BY id`)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not query category links")
		rollback()
		return nil, err
	}
	for rows.Next() {
		l := &Link{}
		var owner, tag pgtype.Text
		var account pgtype.UUID
		if err := rows.Scan(&l.Parent, &l.Child, &l.Order, &owner, &account, &tag); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan category link row")
			rollback()
			return nil, err
		}
		l.ScopeInfo = scanScope(owner, account, tag)
		cfg.Links = append(cfg.Links, l)
	}

	rows, err = trx.Query(ctx,
		`SELECT category_id, amount, percent, numerator, denominator, owner, account_id, tag
		 FROM plans ORDER BY id`)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not query plans")
		rollback()
		return nil, err
	}
	for rows.Next() {
		p := &Plan{}
		var amount, percent pgtype.Float8
		var numerator, denominator pgtype.Int8
		var owner, tag pgtype.Text
		var account pgtype.UUID
		if err := rows.Scan(&p.CategoryID, &amount, &percent, &numerator, &denominator, &owner, &account, &tag); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan plan row")
			rollback()
			return nil, err
		}
		switch {
		case amount.Status == pgtype.Present:
			p.Kind = PlanFixed
			p.Amount = amount.Float
		case percent.Status == pgtype.Present:
			p.Kind = PlanPercent
			p.Percent = percent.Float
		case numerator.Status == pgtype.Present:
			p.Kind = PlanFraction
			p.Numerator = numerator.Int
			p.Denominator = denominator.Int
		default:
			p.Kind = PlanRemainder
		}
		p.ScopeInfo = scanScope(owner, account, tag)
		cfg.Plans = append(cfg.Plans, p)
	}

	rows, err = trx.Query(ctx,
		`SELECT category_id, ticker, owner, account_id, tag
		 FROM category_funds ORDER BY id`)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not query category funds")
		rollback()
		return nil, err
	}
	for rows.Next() {
		f := &Fund{}
		var owner, tag pgtype.Text
		var account pgtype.UUID
		if err := rows.Scan(&f.CategoryID, &f.Ticker, &owner, &account, &tag); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan category fund row")
			rollback()
			return nil, err
		}
		f.ScopeInfo = scanScope(owner, account, tag)
		cfg.Funds = append(cfg.Funds, f)
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}

	return cfg, nil
}
