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

package allocation

import "errors"

var (
	// ErrNoAccountBalance indicates the tree root has a zero balance so no
	// plan percentages can be computed.
	ErrNoAccountBalance = errors.New("account balance is zero")

	// ErrUnknownSubtree indicates a rebalance directive names a category
	// that does not exist in the resolved tree.
	ErrUnknownSubtree = errors.New("rebalance subtree not found in tree")

	// ErrNoFund indicates a leaf category resolved without a fund
	// assignment, leaving nothing to value or trade.
	ErrNoFund = errors.New("leaf category has no fund assignment")
)
