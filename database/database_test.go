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

package database_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"

	"github.com/greenbriar/fundtrack/database"
)

var _ = Describe("Trx", func() {
	var (
		ctx    context.Context
		dbPool pgxmock.PgxConnIface
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)
	})

	It("should hand out a transaction that can commit", func() {
		dbPool.ExpectBegin()
		dbPool.ExpectCommit()

		trx, err := database.Trx(ctx)
		Expect(err).To(BeNil())
		Expect(database.OpenTransactionCount()).To(Equal(1))
		Expect(trx.Commit(ctx)).To(BeNil())
		Expect(database.OpenTransactionCount()).To(Equal(0))
		Expect(dbPool.ExpectationsWereMet()).To(BeNil())
	})

	It("should hand out a transaction that can roll back", func() {
		dbPool.ExpectBegin()
		dbPool.ExpectRollback()

		trx, err := database.Trx(ctx)
		Expect(err).To(BeNil())
		Expect(database.OpenTransactionCount()).To(Equal(1))
		Expect(trx.Rollback(ctx)).To(BeNil())
		Expect(database.OpenTransactionCount()).To(Equal(0))
		Expect(dbPool.ExpectationsWereMet()).To(BeNil())
	})
})
