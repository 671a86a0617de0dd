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

import "time"

// All series in this module are day granular. Dates are normalized to
// midnight UTC so equality and Before/After behave as calendar-day
// comparisons.

func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func NextDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1)
}

// DaysApart returns the number of whole calendar days between a and b,
// regardless of argument order.
func DaysApart(a time.Time, b time.Time) int {
	days := int(Midnight(b).Sub(Midnight(a)) / (24 * time.Hour))
	if days < 0 {
		return -days
	}
	return days
}
