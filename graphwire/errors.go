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

package graphwire

import (
	"github.com/graphwire/graphwire-go/graphwire/internal/errorutil"
)

// UsageError represents errors caused by incorrect usage of the driver API.
// These are surfaced synchronously, without any network I/O.
type UsageError = errorutil.UsageError

// ConnectivityError represents errors caused by the driver not being able to
// reach the database, or lost connections.
type ConnectivityError = errorutil.ConnectivityError

// SessionExpiredError means the session can no longer satisfy the criteria
// under which it was acquired. Creating a new session and retrying is safe.
type SessionExpiredError = errorutil.SessionExpiredError

// ServiceUnavailableError means no server could be reached. Retrying is safe.
type ServiceUnavailableError = errorutil.ServiceUnavailableError

// TransactionExecutionLimit is produced when a managed transaction exhausted
// its retry time budget. It reports the attempt count and elapsed time and
// carries the last underlying error as cause.
type TransactionExecutionLimit = errorutil.TransactionExecutionLimit

// IsRetryable reports whether an error returned by any driver API would be
// transparently retried when it occurred inside ExecuteRead/ExecuteWrite.
func IsRetryable(err error) bool {
	return errorutil.IsRetryable(err)
}
