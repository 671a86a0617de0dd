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
	"github.com/rs/zerolog/log"
)

// LoadFunds reads the fund reference table.
func LoadFunds(ctx context.Context) ([]*Fund, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := trx.Query(ctx, `SELECT ticker, name FROM funds ORDER BY ticker`)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not query funds")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	funds := make([]*Fund, 0, 32)
	for rows.Next() {
		f := &Fund{}
		if err := rows.Scan(&f.Ticker, &f.Name); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan fund row")
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		funds = append(funds, f)
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return funds, nil
}
