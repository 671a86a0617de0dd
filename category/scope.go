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

// Most-specific-override-wins resolution shared by links, plans and fund
// assignments. A row may be global, owner wide, or pinned to one account,
// optionally refined by a tag. Resolution scores every applicable candidate
// and takes the best; ties break on insertion order so results are
// deterministic given identical inputs.

import (
	"sort"

	"github.com/google/uuid"
	"github.com/greenbriar/fundtrack/data"
)

// Scope carries the optional override dimensions of a configuration row.
// Zero values mean "applies to everyone".
type Scope struct {
	Owner   string
	Account uuid.UUID
	Tag     string
}

type Scoped interface {
	Scope() Scope
}

// applies reports whether a row is a candidate for the given account and tag
// set. Without tags only untagged rows participate.
func (s Scope) applies(acct *data.Account, tags []string) bool {
	if s.Owner != "" && s.Owner != acct.Owner {
		return false
	}
	if s.Account != uuid.Nil && s.Account != acct.ID {
		return false
	}
	if s.Tag == "" {
		return true
	}
	for _, t := range tags {
		if s.Tag == t {
			return true
		}
	}
	return false
}

// score is the sort key: (tag match, account specificity, owner
// specificity), each 0 when the more specific dimension is set. Lower wins.
func (s Scope) score() [3]int {
	var key [3]int
	if s.Tag == "" {
		key[0] = 1
	}
	if s.Account == uuid.Nil {
		key[1] = 1
	}
	if s.Owner == "" {
		key[2] = 1
	}
	return key
}

func scoreLess(a [3]int, b [3]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Resolve returns the most specific applicable row, or ok=false when none
// applies.
func Resolve[T Scoped](rows []T, acct *data.Account, tags []string) (T, bool) {
	var winner T
	var winnerScore [3]int
	found := false

	for _, row := range rows {
		s := row.Scope()
		if !s.applies(acct, tags) {
			continue
		}
		score := s.score()
		if !found || scoreLess(score, winnerScore) {
			winner = row
			winnerScore = score
			found = true
		}
	}

	return winner, found
}

// ResolveGroups partitions rows by key, resolves each group independently
// and returns the winners ordered by ascending group key.
func ResolveGroups[T Scoped](rows []T, key func(T) int, acct *data.Account, tags []string) map[int]T {
	groups := make(map[int][]T)
	for _, row := range rows {
		k := key(row)
		groups[k] = append(groups[k], row)
	}

	winners := make(map[int]T, len(groups))
	for k, group := range groups {
		if w, ok := Resolve(group, acct, tags); ok {
			winners[k] = w
		}
	}
	return winners
}

func sortedKeys[T any](m map[int]T) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
