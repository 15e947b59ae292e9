/*
 * Copyright (c) "GraphWire"
 * GraphWire project authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errorutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/graphwire/graphwire-go/graphwire/db"
)

// TransactionExecutionLimit indicates that a retryable transaction has
// failed due to exhausting its wall-clock retry budget. It belongs to the
// service-unavailable class for callers applying their own fallback, but is
// itself never retried.
type TransactionExecutionLimit struct {
	Attempts int
	Elapsed  time.Duration
	Errors   []error
}

func (e *TransactionExecutionLimit) Error() string {
	var last error
	if len(e.Errors) > 0 {
		last = e.Errors[len(e.Errors)-1]
	}
	return fmt.Sprintf(
		"TransactionExecutionLimit: timeout (exceeded max retry time) after %d attempts in %s, last error: %s",
		e.Attempts, e.Elapsed, last)
}

// Unwrap exposes the last underlying error as cause.
func (e *TransactionExecutionLimit) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// IsRetryable reports whether err belongs to one of the designated transient
// classes that the transaction executor retries transparently. Everything
// else fails fast.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var limit *TransactionExecutionLimit
	if errors.As(err, &limit) {
		return false
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return false
	}
	var server *db.ServerError
	if errors.As(err, &server) {
		return server.IsRetriable()
	}
	var expired *SessionExpiredError
	if errors.As(err, &expired) {
		return true
	}
	var unavailable *ServiceUnavailableError
	if errors.As(err, &unavailable) {
		return true
	}
	var connectivity *ConnectivityError
	if errors.As(err, &connectivity) {
		return true
	}
	return false
}
