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
	"fmt"
	"time"

	"github.com/greenbriar/fundtrack/data"
	"github.com/rs/zerolog/log"
)

// Node is one resolved category in an account's tree, listed in pre-order.
// Valuation and plan fields start zero; the allocation engine fills them.
type Node struct {
	Category *Category `json:"category"`
	Depth    int       `json:"depth"`
	Order    int       `json:"order"`
	Plan     *Plan     `json:"-"`
	Ticker   string    `json:"ticker,omitempty"`
	Children []*Node   `json:"children,omitempty"`

	Shares      float64   `json:"shares"`
	SharePrice  float64   `json:"sharePrice"`
	Balance     float64   `json:"balance"`
	PctOfPeak   float64   `json:"pctOfPeak,omitempty"`
	PeakDate    time.Time `json:"peakDate,omitempty"`
	PctOfTrough float64   `json:"pctOfTrough,omitempty"`
	TroughDate  time.Time `json:"troughDate,omitempty"`

	PlanBalance      float64 `json:"planBalance"`
	PlanPctOfGroup   float64 `json:"planPctOfGroup"`
	PlanPctOfAccount float64 `json:"planPctOfAccount"`
	AdjPct           float64 `json:"adjPct"`
	AdjPlanBalance   float64 `json:"adjPlanBalance"`
	ChangeInShares   float64 `json:"changeInShares"`
	PriceUnknown     bool    `json:"priceUnknown,omitempty"`
}

func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// BuildTree resolves the category tree rooted at rootID for one account and
// optional tag set. The result is the pre-order node list (result[0] is the
// root); each node carries its 1-based visitation order, depth from root,
// resolved plan, resolved fund (leaves) and ordered children. The walk
// carries an explicit ancestor path so a mis-configured cycle fails instead
// of looping.
func BuildTree(cfg *Config, rootID int64, acct *data.Account, tags []string) ([]*Node, error) {
	root, ok := cfg.Categories[rootID]
	if !ok {
		log.Error().Stack().Int64("CategoryID", rootID).Msg("tree root does not exist")
		return nil, ErrUnknownCategory
	}

	tree := make([]*Node, 0, 32)
	order := 1

	var walk func(cat *Category, depth int, path map[int64]bool) (*Node, error)
	walk = func(cat *Category, depth int, path map[int64]bool) (*Node, error) {
		if path[cat.ID] {
			log.Error().Stack().Int64("CategoryID", cat.ID).Str("Category", cat.Name).Msg("cycle encountered while building tree")
			return nil, fmt.Errorf("%w: category %q revisited", ErrCategoryCycle, cat.Name)
		}
		path[cat.ID] = true
		defer delete(path, cat.ID)

		node := &Node{
			Category: cat,
			Depth:    depth,
			Order:    order,
		}
		order++
		tree = append(tree, node)

		if plan, ok := Resolve(cfg.plansFor(cat.ID), acct, tags); ok {
			node.Plan = plan
		}

		children, err := cfg.resolveChildren(cat.ID, acct, tags)
		if err != nil {
			return nil, err
		}

		if len(children) == 0 {
			if fund, ok := Resolve(cfg.fundsFor(cat.ID), acct, tags); ok {
				node.Ticker = fund.Ticker
			}
			return node, nil
		}

		for _, childID := range children {
			childCat, ok := cfg.Categories[childID]
			if !ok {
				log.Error().Stack().Int64("CategoryID", childID).Msg("link references unknown category")
				return nil, ErrUnknownCategory
			}
			childNode, err := walk(childCat, depth+1, path)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, childNode)
		}
		return node, nil
	}

	if _, err := walk(root, 0, make(map[int64]bool)); err != nil {
		return nil, err
	}
	return tree, nil
}

// resolveChildren returns the ordered child category ids for parent. Links
// compete within their order group; the winner supplies the child. Two
// applicable links of the same order carrying different non-empty tags is a
// configuration error.
func (c *Config) resolveChildren(parent int64, acct *data.Account, tags []string) ([]int64, error) {
	links := c.childLinks(parent)
	if len(links) == 0 {
		return nil, nil
	}

	groups := make(map[int][]*Link)
	for _, l := range links {
		if l.ScopeInfo.applies(acct, tags) {
			groups[l.Order] = append(groups[l.Order], l)
		}
	}

	children := make([]int64, 0, len(groups))
	for _, ord := range sortedKeys(groups) {
		group := groups[ord]
		winner, _ := Resolve(group, acct, tags)
		if winner.ScopeInfo.Tag != "" {
			for _, other := range group {
				if other.ScopeInfo.Tag != "" && other.ScopeInfo.Tag != winner.ScopeInfo.Tag {
					log.Error().Stack().Int64("Parent", parent).Int("Order", ord).
						Str("Tag", winner.ScopeInfo.Tag).Str("ConflictingTag", other.ScopeInfo.Tag).
						Msg("sibling links of the same order carry conflicting tags")
					return nil, ErrInconsistentTagging
				}
			}
		}
		children = append(children, winner.Child)
	}
	return children, nil
}

// A Cycle is the ancestor path that led back to an already visited category,
// ending with the repeated id.
type Cycle []int64

// CheckStructure walks every raw child link (all scopes) from rootID and
// collects cycles rather than failing; the caller decides policy. Returns
// the set of category ids reached.
func CheckStructure(cfg *Config, rootID int64) (map[int64]bool, []Cycle) {
	visited := make(map[int64]bool)
	cycles := make([]Cycle, 0)

	var walk func(id int64, path []int64, onPath map[int64]bool)
	walk = func(id int64, path []int64, onPath map[int64]bool) {
		if onPath[id] {
			cycle := make(Cycle, 0, len(path)+1)
			cycle = append(cycle, path...)
			cycle = append(cycle, id)
			cycles = append(cycles, cycle)
			log.Warn().Int64("CategoryID", id).Ints64("Path", cycle).Msg("category cycle detected")
			return
		}

		visited[id] = true
		onPath[id] = true
		path = append(path, id)
		for _, l := range cfg.childLinks(id) {
			walk(l.Child, path, onPath)
		}
		delete(onPath, id)
	}

	walk(rootID, nil, make(map[int64]bool))
	return visited, cycles
}
