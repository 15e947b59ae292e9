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

// Package db defines the data model and the collaborator interfaces the
// driver core is built on. Wire-level encoding, connection pooling and
// cluster routing live behind these interfaces and are not part of this
// module.
package db

import (
	"context"
	"fmt"
	"time"
)

// AccessMode is used by the routing-aware provider to pick a suitable server.
type AccessMode int

const (
	WriteMode AccessMode = 0
	ReadMode  AccessMode = 1
)

// DefaultDatabase marks usage of the home database of the connected server.
const DefaultDatabase = ""

// ProtocolVersion of the negotiated Bolt connection.
type ProtocolVersion struct {
	Major int
	Minor int
}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ServerInfo describes the server a connection points at.
type ServerInfo struct {
	Address         string
	Agent           string
	ProtocolVersion ProtocolVersion
}

// Command is one query execution request.
type Command struct {
	Query  string
	Params map[string]any
	// FetchSize is the number of records to request per batch,
	// or -1 to stream without batching.
	FetchSize int
}

// TxConfig carries everything a begin or auto-commit run needs to know
// about the transactional context.
type TxConfig struct {
	Mode             AccessMode
	Bookmarks        []string
	Database         string
	Timeout          time.Duration
	Metadata         map[string]any
	ImpersonatedUser string
	// NotificationFilter is passed through to the server untouched.
	NotificationFilter string
}

// StreamObserver receives the outcome of one query execution. The connection
// invokes OnKeys once before any record, OnNext once per record in stream
// order and exactly one of OnCompleted/OnError as the terminal callback.
// Callbacks may be invoked from the connection's read goroutine.
type StreamObserver interface {
	OnKeys(keys []string)
	OnNext(record *Record)
	OnCompleted(summary *Summary)
	OnError(err error)
}

// Stream is the producer-side handle of one running query. Pause stops the
// connection from requesting more records from the server, Resume restarts
// it and Cancel instructs the server to discard whatever remains. All three
// are idempotent.
type Stream interface {
	Pause()
	Resume()
	Cancel()
}

// Connection is an established, authenticated Bolt connection as seen by the
// session/transaction engine.
type Connection interface {
	// Run executes cypher as an auto-commit transaction, delivering the
	// outcome to obs. When Run returns an error the observer is never
	// invoked; the same holds for RunInTransaction.
	Run(ctx context.Context, cmd Command, txConfig TxConfig, obs StreamObserver) (Stream, error)
	// BeginTransaction opens an explicit transaction. The call returns
	// after the server acknowledged or rejected the begin request.
	BeginTransaction(ctx context.Context, txConfig TxConfig) error
	// RunInTransaction executes cmd within the currently open transaction.
	RunInTransaction(ctx context.Context, cmd Command, obs StreamObserver) (Stream, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	// ResetAndFlush forces the connection back to a clean state, rolling
	// back any server-side transaction leftovers.
	ResetAndFlush(ctx context.Context) error
	// Bookmark returns the bookmark received from the last committed
	// transaction or completed auto-commit run, empty string if none.
	Bookmark() string
	IsOpen() bool
	ProtocolVersion() ProtocolVersion
	ServerName() string
}

// AcquireParams qualifies a connection acquisition request.
type AcquireParams struct {
	Mode             AccessMode
	Database         string
	Bookmarks        []string
	ImpersonatedUser string
	Auth             map[string]any
	// OnDatabaseNameResolved is invoked when the provider resolved the
	// home database name, if it had to.
	OnDatabaseNameResolved func(database string)
}

// ConnectionProvider hands out connections suitable for a given access mode
// and database. Implementations own pooling and routing and must be safe for
// concurrent use.
type ConnectionProvider interface {
	AcquireConnection(ctx context.Context, params AcquireParams) (Connection, error)
	// ReleaseConnection returns a connection previously acquired from this
	// provider. The connection must not be used afterwards.
	ReleaseConnection(ctx context.Context, connection Connection) error

	SupportsMultiDB(ctx context.Context) (bool, error)
	SupportsTransactionConfig(ctx context.Context) (bool, error)
	SupportsUserImpersonation(ctx context.Context) (bool, error)
	SupportsSessionAuth(ctx context.Context) (bool, error)

	VerifyConnectivityAndGetServerInfo(ctx context.Context) (*ServerInfo, error)
	Close(ctx context.Context) error
}
