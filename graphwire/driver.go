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
	"context"
	"sync"

	"github.com/graphwire/graphwire-go/graphwire/db"
	"github.com/graphwire/graphwire-go/graphwire/internal/errorutil"
	"github.com/graphwire/graphwire-go/graphwire/log"
)

// Driver is the entry point of this package: a factory of sessions bound to
// one connection provider. Drivers are safe for concurrent use.
type Driver interface {
	// NewSession creates a session from this driver. Sessions are cheap to
	// create and are not safe for concurrent use.
	NewSession(ctx context.Context, config SessionConfig) Session
	// ExecuteQuery runs the query in a managed transaction on a throwaway
	// session and eagerly collects the whole result. All ExecuteQuery
	// invocations on the same driver are causally chained through a shared
	// bookmark manager unless configured otherwise.
	ExecuteQuery(ctx context.Context, query string, params map[string]any, configurers ...func(*QueryConfig)) (*EagerResult, error)
	// DefaultExecuteQueryBookmarkManager returns the bookmark manager
	// ExecuteQuery uses when none is configured. Pass it to a session's
	// BookmarkManager to chain that session after ExecuteQuery calls.
	DefaultExecuteQueryBookmarkManager() BookmarkManager
	// VerifyConnectivity checks that the driver can reach a server.
	VerifyConnectivity(ctx context.Context) error
	// GetServerInfo verifies connectivity and describes the reached server.
	GetServerInfo(ctx context.Context) (*db.ServerInfo, error)

	SupportsMultiDB(ctx context.Context) (bool, error)
	SupportsTransactionConfig(ctx context.Context) (bool, error)
	SupportsUserImpersonation(ctx context.Context) (bool, error)
	SupportsSessionAuth(ctx context.Context) (bool, error)

	// IsOpen reports whether the driver can still hand out sessions.
	IsOpen() bool
	// Close the driver and its connection provider. Idempotent. Sessions
	// created afterwards fail on first use.
	Close(ctx context.Context) error
}

// RoutingControl specifies how ExecuteQuery routes its transaction.
type RoutingControl int

const (
	// Write routes to a writer. This is the default.
	Write RoutingControl = iota
	// Read routes to a reader.
	Read
)

// QueryConfig configures one ExecuteQuery invocation.
type QueryConfig struct {
	Database         string
	ImpersonatedUser string
	Routing          RoutingControl
	// BookmarkManager chains this invocation with others. Defaults to the
	// driver's shared ExecuteQuery manager, nil disables chaining.
	BookmarkManager BookmarkManager
}

// ExecuteQueryWithDatabase makes ExecuteQuery run against the named database.
func ExecuteQueryWithDatabase(database string) func(*QueryConfig) {
	return func(config *QueryConfig) {
		config.Database = database
	}
}

// ExecuteQueryWithImpersonatedUser makes ExecuteQuery impersonate the user.
func ExecuteQueryWithImpersonatedUser(user string) func(*QueryConfig) {
	return func(config *QueryConfig) {
		config.ImpersonatedUser = user
	}
}

// ExecuteQueryWithReadersRouting routes the query to a reader.
func ExecuteQueryWithReadersRouting() func(*QueryConfig) {
	return func(config *QueryConfig) {
		config.Routing = Read
	}
}

// ExecuteQueryWithWritersRouting routes the query to a writer.
func ExecuteQueryWithWritersRouting() func(*QueryConfig) {
	return func(config *QueryConfig) {
		config.Routing = Write
	}
}

// ExecuteQueryWithBookmarkManager replaces the bookmark manager for this
// invocation.
func ExecuteQueryWithBookmarkManager(manager BookmarkManager) func(*QueryConfig) {
	return func(config *QueryConfig) {
		config.BookmarkManager = manager
	}
}

// ExecuteQueryWithoutBookmarkManager disables causal chaining for this
// invocation.
func ExecuteQueryWithoutBookmarkManager() func(*QueryConfig) {
	return func(config *QueryConfig) {
		config.BookmarkManager = nil
	}
}

// EagerResult is a fully materialized query outcome.
type EagerResult struct {
	Keys    []string
	Records []*Record
	Summary ResultSummary
}

type driver struct {
	provider db.ConnectionProvider
	config   *Config
	log      log.Logger
	logId    string

	mu     sync.Mutex
	closed bool

	executeQueryBookmarkManagerInit sync.Once
	executeQueryBookmarkManager     BookmarkManager
}

// NewDriver creates a driver on top of the given connection provider. The
// provider owns connectivity (pooling, routing, the wire protocol); the
// driver owns the session and transaction lifecycle.
func NewDriver(provider db.ConnectionProvider, configurers ...func(*Config)) (Driver, error) {
	if provider == nil {
		return nil, &errorutil.UsageError{Message: "a driver requires a connection provider, nil given"}
	}
	config := defaultConfig()
	for _, c := range configurers {
		c(config)
	}
	if config.Logger == nil {
		config.Logger = log.Void{}
	}
	d := &driver{
		provider: provider,
		config:   config,
		log:      config.Logger,
		logId:    log.NewId(),
	}
	d.log.Infof(log.Driver, d.logId, "Created")
	return d, nil
}

func (d *driver) NewSession(ctx context.Context, config SessionConfig) Session {
	if !d.IsOpen() {
		return &erroredSession{err: &errorutil.UsageError{Message: "cannot create a session on a closed driver"}}
	}
	return newSession(d.config, config, d.provider, d.log)
}

func (d *driver) ExecuteQuery(ctx context.Context, query string, params map[string]any, configurers ...func(*QueryConfig)) (*EagerResult, error) {
	if !d.IsOpen() {
		return nil, &errorutil.UsageError{Message: "cannot execute a query on a closed driver"}
	}
	config := QueryConfig{
		Routing:         Write,
		BookmarkManager: d.DefaultExecuteQueryBookmarkManager(),
	}
	for _, c := range configurers {
		c(&config)
	}
	session := d.NewSession(ctx, SessionConfig{
		DatabaseName:     config.Database,
		ImpersonatedUser: config.ImpersonatedUser,
		BookmarkManager:  config.BookmarkManager,
	})
	work := func(tx ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		keys, err := result.Keys(ctx)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		summary, err := result.Summary(ctx)
		if err != nil {
			return nil, err
		}
		return &EagerResult{Keys: keys, Records: records, Summary: summary}, nil
	}
	var eager any
	var err error
	if config.Routing == Read {
		eager, err = session.ExecuteRead(ctx, work)
	} else {
		eager, err = session.ExecuteWrite(ctx, work)
	}
	err = errorutil.CombineErrors(err, session.Close(ctx))
	if err != nil {
		return nil, err
	}
	return eager.(*EagerResult), nil
}

func (d *driver) DefaultExecuteQueryBookmarkManager() BookmarkManager {
	d.executeQueryBookmarkManagerInit.Do(func() {
		d.executeQueryBookmarkManager = NewBookmarkManager(BookmarkManagerConfig{})
	})
	return d.executeQueryBookmarkManager
}

func (d *driver) VerifyConnectivity(ctx context.Context) error {
	_, err := d.GetServerInfo(ctx)
	return err
}

func (d *driver) GetServerInfo(ctx context.Context) (*db.ServerInfo, error) {
	if !d.IsOpen() {
		return nil, &errorutil.UsageError{Message: "cannot get server info on a closed driver"}
	}
	return d.provider.VerifyConnectivityAndGetServerInfo(ctx)
}

func (d *driver) SupportsMultiDB(ctx context.Context) (bool, error) {
	return d.provider.SupportsMultiDB(ctx)
}

func (d *driver) SupportsTransactionConfig(ctx context.Context) (bool, error) {
	return d.provider.SupportsTransactionConfig(ctx)
}

func (d *driver) SupportsUserImpersonation(ctx context.Context) (bool, error) {
	return d.provider.SupportsUserImpersonation(ctx)
}

func (d *driver) SupportsSessionAuth(ctx context.Context) (bool, error) {
	return d.provider.SupportsSessionAuth(ctx)
}

func (d *driver) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

func (d *driver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	err := d.provider.Close(ctx)
	d.log.Infof(log.Driver, d.logId, "Closed")
	return err
}

// erroredSession is handed out by a closed driver; every operation reports
// the same error.
type erroredSession struct {
	err error
}

func (s *erroredSession) Run(context.Context, string, map[string]any, ...func(*TransactionConfig)) (Result, error) {
	return nil, s.err
}

func (s *erroredSession) BeginTransaction(context.Context, ...func(*TransactionConfig)) (ExplicitTransaction, error) {
	return nil, s.err
}

func (s *erroredSession) ExecuteRead(context.Context, ManagedTransactionWork, ...func(*TransactionConfig)) (any, error) {
	return nil, s.err
}

func (s *erroredSession) ExecuteWrite(context.Context, ManagedTransactionWork, ...func(*TransactionConfig)) (any, error) {
	return nil, s.err
}

func (s *erroredSession) ReadTransaction(context.Context, ManagedTransactionWork, ...func(*TransactionConfig)) (any, error) {
	return nil, s.err
}

func (s *erroredSession) WriteTransaction(context.Context, ManagedTransactionWork, ...func(*TransactionConfig)) (any, error) {
	return nil, s.err
}

func (s *erroredSession) LastBookmarks() Bookmarks {
	return nil
}

func (s *erroredSession) LastBookmark() string {
	return ""
}

func (s *erroredSession) Close(context.Context) error {
	return s.err
}
