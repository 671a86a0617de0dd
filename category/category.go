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

// Three parallel user-authored structures describe how an account is
// allocated: a tree of categories (linked by Link rows), a Plan per
// category, and a Fund assignment per leaf category. All three share the
// same override scoping so one global configuration can be specialized per
// user or per account.

import "fmt"

// Category is a named node in the allocation tree. Whether it is a group or
// a leaf is determined by the resolved links, not by the node itself.
type Category struct {
	ID   int64
	Name string
}

func (c *Category) String() string {
	return c.Name
}

// Link attaches a child category to a parent. Overrides are applied per
// `Order` group: all links sharing a parent and order compete and the most
// specific applicable one supplies that position's child.
type Link struct {
	Parent int64
	Child  int64
	Order  int

	ScopeInfo Scope
}

func (l *Link) Scope() Scope {
	return l.ScopeInfo
}

type PlanKind int

const (
	// PlanRemainder absorbs whatever its siblings left over. Valid only as
	// the last plan in its sibling group.
	PlanRemainder PlanKind = iota
	PlanFixed
	PlanPercent
	PlanFraction
)

// Plan sets the target for one category as exactly one of a fixed dollar
// amount, a percentage of the parent's balance, or an exact fraction.
type Plan struct {
	CategoryID  int64
	Kind        PlanKind
	Amount      float64
	Percent     float64
	Numerator   int64
	Denominator int64

	ScopeInfo Scope
}

func (p *Plan) Scope() Scope {
	return p.ScopeInfo
}

func (p *Plan) String() string {
	switch p.Kind {
	case PlanFixed:
		return fmt.Sprintf("$%v", p.Amount)
	case PlanPercent:
		return fmt.Sprintf("%v%%", p.Percent*100)
	case PlanFraction:
		return fmt.Sprintf("%d/%d", p.Numerator, p.Denominator)
	}
	return "..."
}

// Target computes (pct of group, target balance) against the group's
// starting balance. Remainder plans consume the running remainder and are
// only legal in last position.
func (p *Plan) Target(startingBalance float64, remainingBalance float64, last bool) (float64, float64, error) {
	switch p.Kind {
	case PlanFixed:
		return p.Amount / startingBalance, p.Amount, nil
	case PlanPercent:
		return p.Percent, startingBalance * p.Percent, nil
	case PlanFraction:
		pct := float64(p.Numerator) / float64(p.Denominator)
		return pct, startingBalance * pct, nil
	}
	if !last {
		return 0, 0, ErrInvalidPlanOrder
	}
	return remainingBalance / startingBalance, remainingBalance, nil
}

// Fund assigns a fund ticker to a leaf category.
type Fund struct {
	CategoryID int64
	Ticker     string

	ScopeInfo Scope
}

func (f *Fund) Scope() Scope {
	return f.ScopeInfo
}

// Config holds the full set of user-authored allocation rows. It is loaded
// once and treated as immutable during tree resolution.
type Config struct {
	Categories map[int64]*Category
	Links      []*Link
	Plans      []*Plan
	Funds      []*Fund
}

func NewConfig() *Config {
	return &Config{
		Categories: make(map[int64]*Category),
	}
}

func (c *Config) childLinks(parent int64) []*Link {
	links := make([]*Link, 0, 8)
	for _, l := range c.Links {
		if l.Parent == parent {
			links = append(links, l)
		}
	}
	return links
}

func (c *Config) plansFor(categoryID int64) []*Plan {
	plans := make([]*Plan, 0, 4)
	for _, p := range c.Plans {
		if p.CategoryID == categoryID {
			plans = append(plans, p)
		}
	}
	return plans
}

func (c *Config) fundsFor(categoryID int64) []*Fund {
	funds := make([]*Fund, 0, 4)
	for _, f := range c.Funds {
		if f.CategoryID == categoryID {
			funds = append(funds, f)
		}
	}
	return funds
}
