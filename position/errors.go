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

import "errors"

var (
	ErrNegativeBalance = errors.New("reconstructed share balance went negative")
	ErrSeriesOutOfSync = errors.New("position series end date does not match account bookkeeping")
	ErrDuplicateRecord = errors.New("position record already exists for account/fund/date")
	ErrNoTransactions  = errors.New("account has no transaction history")
)
