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

package db

import (
	"fmt"
	"strings"
)

// ServerError is created when the database server failed to fulfill a
// request. Codes follow the dotted pattern
// "<Vendor>.<Classification>.<Category>.<Title>".
type ServerError struct {
	Code string
	Msg  string

	parsed         bool
	classification string
	category       string
	title          string
	retriable      bool
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("ServerError: %s (%s)", e.Code, e.Msg)
}

func (e *ServerError) Classification() string {
	e.parse()
	return e.classification
}

func (e *ServerError) Category() string {
	e.parse()
	return e.category
}

func (e *ServerError) Title() string {
	e.parse()
	return e.title
}

// parse splits the code into usable parts. A code like
// "Bolt.ClientError.General.ForbiddenReadOnlyDatabase" is split into:
//
//	Classification: ClientError
//	Category: General
//	Title: ForbiddenReadOnlyDatabase
func (e *ServerError) parse() {
	if e.parsed {
		return
	}
	e.parsed = true
	e.reclassify()
	parts := strings.Split(e.Code, ".")
	if len(parts) != 4 {
		return
	}
	e.classification = parts[1]
	e.category = parts[2]
	e.title = parts[3]
}

// reclassify moves transaction terminations reported as transient by older
// servers into the client classification. Neither of them is safe to retry,
// the work was stopped on purpose.
func (e *ServerError) reclassify() {
	parts := strings.Split(e.Code, ".")
	if len(parts) != 4 || parts[1] != "TransientError" || parts[2] != "Transaction" {
		return
	}
	switch parts[3] {
	case "Terminated", "LockClientStopped":
		parts[1] = "ClientError"
		e.Code = strings.Join(parts, ".")
	}
}

// IsRetriable reports whether the transaction executor may transparently
// retry the unit of work that caused this error.
func (e *ServerError) IsRetriable() bool {
	return e.retriable ||
		e.IsRetriableTransient() ||
		e.IsRetriableCluster() ||
		e.isAuthorizationExpired()
}

func (e *ServerError) IsRetriableTransient() bool {
	e.parse()
	return e.classification == "TransientError"
}

// IsRetriableCluster reports errors that are resolved by routing the next
// attempt to another cluster member.
func (e *ServerError) IsRetriableCluster() bool {
	e.parse()
	switch {
	case e.category == "Cluster" && e.title == "NotALeader":
		return true
	case e.category == "General" && e.title == "ForbiddenOnReadOnlyDatabase":
		return true
	case e.category == "Database" && e.title == "DatabaseUnavailable":
		return true
	}
	return false
}

func (e *ServerError) isAuthorizationExpired() bool {
	e.parse()
	return e.category == "Security" && e.title == "AuthorizationExpired"
}

// MarkRetriable flags the error as safe to retry regardless of its code.
func (e *ServerError) MarkRetriable() {
	e.retriable = true
}

// ProtocolError is the result of a malformed or unexpected server response,
// for example a stream that ends without a summary. Always fatal to the
// affected stream or transaction, never retried.
type ProtocolError struct {
	Err string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ProtocolError: %s", e.Err)
}
