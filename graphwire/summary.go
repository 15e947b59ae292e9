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
	"time"

	"github.com/graphwire/graphwire-go/graphwire/db"
)

// ResultSummary is the terminal metadata of one completed result stream.
type ResultSummary interface {
	// Query returns the executed query text.
	Query() string
	// Params returns the parameters the query ran with.
	Params() map[string]any
	// StatementType returns the kind of statement the query contained.
	StatementType() db.StatementType
	// Counters returns the update counters the query caused, keyed by the
	// db counter key names.
	Counters() map[string]int
	// ServerName returns the address of the server that ran the query.
	ServerName() string
	// ProtocolVersion returns the Bolt version of the connection the query
	// ran on, captured before the connection was released.
	ProtocolVersion() db.ProtocolVersion
	// Database returns the name of the database the query ran against.
	Database() string
	// Notifications returns advisory server notifications, subject to the
	// session's notification filter.
	Notifications() []db.Notification
	// ResultAvailableAfter is the time it took the server to make the
	// result available for consumption.
	ResultAvailableAfter() time.Duration
	// ResultConsumedAfter is the time it took the server after the result
	// became available to consume it.
	ResultConsumedAfter() time.Duration
}

type resultSummary struct {
	sum             *db.Summary
	query           string
	params          map[string]any
	protocolVersion db.ProtocolVersion
}

func (s *resultSummary) Query() string {
	return s.query
}

func (s *resultSummary) Params() map[string]any {
	return s.params
}

func (s *resultSummary) StatementType() db.StatementType {
	return s.sum.StmntType
}

func (s *resultSummary) Counters() map[string]int {
	return s.sum.Counters
}

func (s *resultSummary) ServerName() string {
	return s.sum.ServerName
}

func (s *resultSummary) ProtocolVersion() db.ProtocolVersion {
	return s.protocolVersion
}

func (s *resultSummary) Database() string {
	return s.sum.Database
}

func (s *resultSummary) Notifications() []db.Notification {
	return s.sum.Notifications
}

func (s *resultSummary) ResultAvailableAfter() time.Duration {
	return time.Duration(s.sum.TFirst) * time.Millisecond
}

func (s *resultSummary) ResultConsumedAfter() time.Duration {
	return time.Duration(s.sum.TLast) * time.Millisecond
}
