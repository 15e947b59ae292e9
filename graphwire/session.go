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
	"math"

	"github.com/graphwire/graphwire-go/graphwire/db"
	"github.com/graphwire/graphwire-go/graphwire/internal/errorutil"
	"github.com/graphwire/graphwire-go/graphwire/internal/retry"
	"github.com/graphwire/graphwire-go/graphwire/log"
)

// ManagedTransactionWork is the signature of a unit of work passed to
// ExecuteRead or ExecuteWrite. It may be invoked more than once, so it must
// not keep state outside the transaction between invocations.
type ManagedTransactionWork func(tx ManagedTransaction) (any, error)

// Session is a logical container for a causally chained sequence of
// transactions. Sessions hold at most one transaction at a time and are not
// safe for concurrent use.
type Session interface {
	// Run executes a query as an auto-commit transaction and returns a
	// result for streaming its records.
	Run(ctx context.Context, query string, params map[string]any, configurers ...func(*TransactionConfig)) (Result, error)
	// BeginTransaction starts an explicit transaction owned by the caller.
	BeginTransaction(ctx context.Context, configurers ...func(*TransactionConfig)) (ExplicitTransaction, error)
	// ExecuteRead runs the unit of work in a read transaction, retrying on
	// transient failures within the driver's retry time budget.
	ExecuteRead(ctx context.Context, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (any, error)
	// ExecuteWrite runs the unit of work in a write transaction, retrying
	// on transient failures within the driver's retry time budget.
	ExecuteWrite(ctx context.Context, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (any, error)
	// ReadTransaction runs the unit of work in a read transaction.
	//
	// Deprecated: use ExecuteRead instead.
	ReadTransaction(ctx context.Context, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (any, error)
	// WriteTransaction runs the unit of work in a write transaction.
	//
	// Deprecated: use ExecuteWrite instead.
	WriteTransaction(ctx context.Context, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (any, error)
	// LastBookmarks returns the bookmarks the session currently waits for,
	// either the configured seed or those of the last completed
	// transaction.
	LastBookmarks() Bookmarks
	// Deprecated: use LastBookmarks instead.
	LastBookmark() string
	// Close releases the session's resources. Any open transaction is
	// rolled back by resetting its connection, any open result is
	// abandoned. Close is idempotent.
	Close(ctx context.Context) error
}

type session struct {
	driverConfig  *Config
	config        SessionConfig
	bookmarks     *sessionBookmarks
	readHolder    *connectionHolder
	writeHolder   *connectionHolder
	tx            *explicitTransaction
	results       []*resultStream
	executor      *retry.Executor
	fetchSize     int
	lowWatermark  int
	highWatermark int
	log           log.Logger
	logId         string
	closed        bool
}

func newSession(driverConfig *Config, sessConfig SessionConfig, provider db.ConnectionProvider, logger log.Logger) *session {
	logId := log.NewId()
	logger.Debugf(log.Session, logId, "Created")

	fetchSize := driverConfig.FetchSize
	if sessConfig.FetchSize != FetchDefault {
		fetchSize = sessConfig.FetchSize
	}
	if fetchSize < FetchAll {
		fetchSize = defaultConfig().FetchSize
	}
	low, high := watermarks(fetchSize)

	s := &session{
		driverConfig:  driverConfig,
		config:        sessConfig,
		bookmarks:     newSessionBookmarks(sessConfig.BookmarkManager, sessConfig.Bookmarks),
		fetchSize:     fetchSize,
		lowWatermark:  low,
		highWatermark: high,
		log:           logger,
		logId:         logId,
	}
	getBookmarks := func(ctx context.Context) (Bookmarks, error) {
		return s.getBookmarks(ctx)
	}
	onResolved := func(database string) {
		s.config.DatabaseName = database
	}
	s.readHolder = &connectionHolder{
		provider:               provider,
		mode:                   db.ReadMode,
		database:               func() string { return s.config.DatabaseName },
		impersonatedUser:       sessConfig.ImpersonatedUser,
		auth:                   sessConfig.Auth,
		getBookmarks:           getBookmarks,
		onDatabaseNameResolved: onResolved,
		log:                    logger,
		logId:                  logId,
	}
	s.writeHolder = &connectionHolder{
		provider:               provider,
		mode:                   db.WriteMode,
		database:               func() string { return s.config.DatabaseName },
		impersonatedUser:       sessConfig.ImpersonatedUser,
		auth:                   sessConfig.Auth,
		getBookmarks:           getBookmarks,
		onDatabaseNameResolved: onResolved,
		log:                    logger,
		logId:                  logId,
	}
	s.executor = retry.NewExecutor(driverConfig.MaxTransactionRetryTime, logger, log.Session, logId)
	return s
}

// watermarks derives the buffer thresholds from the fetch size. Unbounded
// fetching gets thresholds no buffer can reach, which disables pausing.
func watermarks(fetchSize int) (low int, high int) {
	if fetchSize == FetchAll {
		return math.MaxInt, math.MaxInt
	}
	return fetchSize * 3 / 10, fetchSize * 7 / 10
}

func (s *session) Run(ctx context.Context, query string, params map[string]any, configurers ...func(*TransactionConfig)) (Result, error) {
	if s.closed {
		return nil, &errorutil.UsageError{Message: "cannot run a query on a closed session"}
	}
	if s.tx != nil && s.tx.IsOpen() {
		return nil, &errorutil.UsageError{Message: "cannot run an auto-commit query: the session has an open transaction, commit or roll it back first"}
	}
	config := defaultTransactionConfig()
	for _, c := range configurers {
		c(&config)
	}
	if err := validateTransactionConfig(config); err != nil {
		return nil, err
	}

	mode := s.defaultMode()
	holder := s.holderFor(mode)
	conn, err := holder.acquire(ctx)
	if err != nil {
		return nil, errorutil.WrapError(err)
	}
	sentBookmarks, err := s.getBookmarks(ctx)
	if err != nil {
		_ = holder.release(ctx)
		return nil, err
	}
	// the terminal callback may run on the connection's read goroutine,
	// capture the database now instead of reading session config there
	database := s.config.DatabaseName
	res := newResultStream(conn, query, params, s.lowWatermark, s.highWatermark,
		func(_ *db.Summary, err error) {
			if err == nil {
				s.retrieveBookmark(conn, database, sentBookmarks)
			}
			_ = holder.release(context.Background())
		})
	handle, err := conn.Run(ctx,
		db.Command{Query: query, Params: params, FetchSize: s.fetchSize},
		s.txConfig(mode, sentBookmarks, config),
		res)
	if err != nil {
		_ = holder.release(ctx)
		return nil, errorutil.WrapError(err)
	}
	res.attach(handle)
	s.results = append(s.results, res)
	return res, nil
}

func (s *session) BeginTransaction(ctx context.Context, configurers ...func(*TransactionConfig)) (ExplicitTransaction, error) {
	if s.closed {
		return nil, &errorutil.UsageError{Message: "cannot begin a transaction on a closed session"}
	}
	if s.tx != nil && s.tx.IsOpen() {
		return nil, &errorutil.UsageError{Message: "session already has a pending transaction"}
	}
	config := defaultTransactionConfig()
	for _, c := range configurers {
		c(&config)
	}
	if err := validateTransactionConfig(config); err != nil {
		return nil, err
	}
	tx, err := s.beginTransaction(ctx, s.defaultMode(), config)
	if err != nil {
		return nil, err
	}
	s.tx = tx
	return tx, nil
}

// beginTransaction acquires a connection for mode and opens a server-side
// transaction on it. The returned transaction is accepting queries as soon
// as this returns, the begin is acknowledged by then.
func (s *session) beginTransaction(ctx context.Context, mode db.AccessMode, config TransactionConfig) (*explicitTransaction, error) {
	holder := s.holderFor(mode)
	conn, err := holder.acquire(ctx)
	if err != nil {
		return nil, errorutil.WrapError(err)
	}
	sentBookmarks, err := s.getBookmarks(ctx)
	if err != nil {
		_ = holder.release(ctx)
		return nil, err
	}
	if err := conn.BeginTransaction(ctx, s.txConfig(mode, sentBookmarks, config)); err != nil {
		_ = holder.release(ctx)
		return nil, errorutil.WrapError(err)
	}
	tx := &explicitTransaction{
		conn:          conn,
		holder:        holder,
		fetchSize:     s.fetchSize,
		lowWatermark:  s.lowWatermark,
		highWatermark: s.highWatermark,
		state:         txActive,
		log:           s.log,
		logId:         s.logId,
	}
	database := s.config.DatabaseName
	tx.onCommitted = func(c db.Connection) {
		s.retrieveBookmark(c, database, sentBookmarks)
	}
	tx.onClosed = func() {
		if s.tx == tx {
			s.tx = nil
		}
	}
	return tx, nil
}

func (s *session) ExecuteRead(ctx context.Context, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (any, error) {
	return s.runRetryable(ctx, db.ReadMode, work, configurers...)
}

func (s *session) ExecuteWrite(ctx context.Context, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (any, error) {
	return s.runRetryable(ctx, db.WriteMode, work, configurers...)
}

func (s *session) ReadTransaction(ctx context.Context, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (any, error) {
	return s.ExecuteRead(ctx, work, configurers...)
}

func (s *session) WriteTransaction(ctx context.Context, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (any, error) {
	return s.ExecuteWrite(ctx, work, configurers...)
}

func (s *session) runRetryable(ctx context.Context, mode db.AccessMode, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (any, error) {
	if s.closed {
		return nil, &errorutil.UsageError{Message: "cannot run a transaction on a closed session"}
	}
	if s.tx != nil && s.tx.IsOpen() {
		return nil, &errorutil.UsageError{Message: "session already has a pending transaction"}
	}
	config := defaultTransactionConfig()
	for _, c := range configurers {
		c(&config)
	}
	if err := validateTransactionConfig(config); err != nil {
		return nil, err
	}
	return s.executor.Execute(ctx, func(ctx context.Context) (any, error) {
		tx, err := s.beginTransaction(ctx, mode, config)
		if err != nil {
			return nil, err
		}
		s.tx = tx
		result, err := work(&managedTransaction{inner: tx})
		if err != nil {
			// the unit of work wants out, roll back and surface its error
			_ = tx.Close(ctx)
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return result, nil
	})
}

func (s *session) LastBookmarks() Bookmarks {
	return s.bookmarks.currentBookmarks()
}

func (s *session) LastBookmark() string {
	return s.bookmarks.lastBookmark()
}

func (s *session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	// tell producers to stop, best effort, do not wait for them
	for _, res := range s.results {
		res.cancel()
	}
	s.executor.Close()
	txWasOpen := s.tx != nil && s.tx.IsOpen()
	if txWasOpen {
		s.tx.discard()
	}
	err := errorutil.CombineErrors(
		s.readHolder.close(ctx, txWasOpen),
		s.writeHolder.close(ctx, txWasOpen),
	)
	s.log.Debugf(log.Session, s.logId, "Closed")
	return err
}

func (s *session) defaultMode() db.AccessMode {
	if s.config.AccessMode == AccessModeRead {
		return db.ReadMode
	}
	return db.WriteMode
}

func (s *session) holderFor(mode db.AccessMode) *connectionHolder {
	if mode == db.ReadMode {
		return s.readHolder
	}
	return s.writeHolder
}

func (s *session) getBookmarks(ctx context.Context) (Bookmarks, error) {
	return s.bookmarks.getBookmarks(ctx, s.config.DatabaseName)
}

// retrieveBookmark stores the bookmark the connection received for its last
// completed transaction, chaining the session's next transaction after it.
// For auto-commit runs this is called from the connection's read goroutine.
func (s *session) retrieveBookmark(conn db.Connection, database string, sentBookmarks Bookmarks) {
	if conn == nil {
		return
	}
	if err := s.bookmarks.replaceBookmarks(context.Background(), database, sentBookmarks, conn.Bookmark()); err != nil {
		s.log.Warnf(log.Session, s.logId, "failed to update bookmarks: %s", err)
	}
}

func (s *session) txConfig(mode db.AccessMode, bookmarks Bookmarks, config TransactionConfig) db.TxConfig {
	return db.TxConfig{
		Mode:               mode,
		Bookmarks:          bookmarks,
		Database:           s.config.DatabaseName,
		Timeout:            config.Timeout,
		Metadata:           config.Metadata,
		ImpersonatedUser:   s.config.ImpersonatedUser,
		NotificationFilter: s.config.NotificationFilter,
	}
}
