// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import "golang.org/x/time/rate"

// rateLimiter guards tool calls with two token buckets: one for whole
// document completions (the expensive path) and one for all calls.
type rateLimiter struct {
	completions *rate.Limiter
	calls       *rate.Limiter
}

func newRateLimiter(completionsPerMinute, callsPerMinute int) *rateLimiter {
	return &rateLimiter{
		completions: rate.NewLimiter(rate.Limit(float64(completionsPerMinute)/60.0), completionsPerMinute),
		calls:       rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), callsPerMinute),
	}
}

// allowCall reports whether any tool call may proceed.
func (l *rateLimiter) allowCall() bool {
	return l.calls.Allow()
}

// allowCompletion reports whether a whole-document completion may proceed.
// It consumes from both buckets.
func (l *rateLimiter) allowCompletion() bool {
	if !l.calls.Allow() {
		return false
	}
	return l.completions.Allow()
}
