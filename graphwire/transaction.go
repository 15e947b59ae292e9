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
	"fmt"
	"sync"

	"github.com/graphwire/graphwire-go/graphwire/db"
	"github.com/graphwire/graphwire-go/graphwire/internal/errorutil"
	"github.com/graphwire/graphwire-go/graphwire/log"
)

// ManagedTransaction is a transaction whose begin/commit/rollback lifecycle
// is driven by the driver's retry machinery. The unit of work only gets to
// run queries on it.
type ManagedTransaction interface {
	// Run executes a query on this transaction and returns its result.
	Run(ctx context.Context, query string, params map[string]any) (Result, error)
}

// ExplicitTransaction is a transaction begun and completed by the caller.
type ExplicitTransaction interface {
	// Run executes a query on this transaction and returns its result.
	Run(ctx context.Context, query string, params map[string]any) (Result, error)
	// Commit commits the transaction.
	Commit(ctx context.Context) error
	// Rollback rolls back the transaction.
	Rollback(ctx context.Context) error
	// Close rolls back the transaction if it is still open and is a no-op
	// otherwise.
	Close(ctx context.Context) error
	// IsOpen reports whether the transaction still accepts queries.
	IsOpen() bool
}

// txState is the lifecycle of one server-side transaction. The three
// terminal states are absorbing: operations on a completed transaction fail
// locally with a state-specific error and never touch the network.
type txState int

const (
	txActive txState = iota
	txFailed
	txSucceeded
	txRolledBack
)

type explicitTransaction struct {
	conn          db.Connection
	holder        *connectionHolder
	fetchSize     int
	lowWatermark  int
	highWatermark int
	results       []*resultStream
	// mu guards state; a failing result stream moves the transaction to
	// failed from the connection's read goroutine.
	mu    sync.Mutex
	state txState
	// onCommitted runs after a successful commit while the connection is
	// still held, so bookmarks can be picked up before release.
	onCommitted func(conn db.Connection)
	// onClosed clears the owning session's open-transaction slot.
	onClosed func()
	log      log.Logger
	logId    string
}

func (tx *explicitTransaction) Run(ctx context.Context, query string, params map[string]any) (Result, error) {
	if err := tx.stateError("run a query in this transaction"); err != nil {
		return nil, err
	}
	// the result is one more logical user of the transaction's connection
	if _, err := tx.holder.acquire(ctx); err != nil {
		return nil, errorutil.WrapError(err)
	}
	res := newResultStream(tx.conn, query, params, tx.lowWatermark, tx.highWatermark,
		func(_ *db.Summary, err error) {
			_ = tx.holder.release(context.Background())
			if err != nil {
				tx.fail(context.Background(), err)
			}
		})
	handle, err := tx.conn.RunInTransaction(ctx, db.Command{Query: query, Params: params, FetchSize: tx.fetchSize}, res)
	if err != nil {
		_ = tx.holder.release(ctx)
		tx.fail(ctx, err)
		return nil, errorutil.WrapError(err)
	}
	res.attach(handle)
	tx.results = append(tx.results, res)
	return res, nil
}

func (tx *explicitTransaction) Commit(ctx context.Context) error {
	if err := tx.stateError("commit this transaction"); err != nil {
		return err
	}
	if err := tx.awaitResults(ctx); err != nil {
		// a failed result has already moved the transaction to failed
		return errorutil.WrapError(err)
	}
	if tx.currentState() != txActive {
		return tx.stateError("commit this transaction")
	}
	if err := tx.conn.CommitTransaction(ctx); err != nil {
		tx.fail(ctx, err)
		return errorutil.WrapError(err)
	}
	tx.setState(txSucceeded)
	if tx.onCommitted != nil {
		tx.onCommitted(tx.conn)
	}
	_ = tx.holder.release(ctx)
	if tx.onClosed != nil {
		tx.onClosed()
	}
	return nil
}

func (tx *explicitTransaction) Rollback(ctx context.Context) error {
	switch tx.currentState() {
	case txFailed:
		// the server already discarded the transaction when the error
		// occurred, nothing left to roll back
		return nil
	case txSucceeded, txRolledBack:
		return tx.stateError("roll back this transaction")
	}
	if err := tx.awaitResults(ctx); err != nil {
		if tx.currentState() == txFailed {
			return nil
		}
		return errorutil.WrapError(err)
	}
	if err := tx.conn.RollbackTransaction(ctx); err != nil {
		tx.fail(ctx, err)
		return errorutil.WrapError(err)
	}
	tx.setState(txRolledBack)
	_ = tx.holder.release(ctx)
	if tx.onClosed != nil {
		tx.onClosed()
	}
	return nil
}

func (tx *explicitTransaction) Close(ctx context.Context) error {
	if tx.currentState() != txActive {
		// repeated Close is a no-op
		return nil
	}
	return tx.Rollback(ctx)
}

func (tx *explicitTransaction) IsOpen() bool {
	return tx.currentState() == txActive
}

func (tx *explicitTransaction) currentState() txState {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

func (tx *explicitTransaction) setState(state txState) {
	tx.mu.Lock()
	tx.state = state
	tx.mu.Unlock()
}

// awaitResults requests the summary of every result opened within the
// transaction, without cancelling any of them. The server is thereby known
// to have finished all prior runs before the terminal message goes out.
func (tx *explicitTransaction) awaitResults(ctx context.Context) error {
	for _, res := range tx.results {
		if err := res.buffer(ctx); err != nil {
			return err
		}
	}
	return nil
}

// fail is the one-way move to the failed state, possibly taken from the
// connection's read goroutine. The first failure releases the transaction's
// own hold on the connection; repeated errors while already failed do not
// re-release. The owning session observes the closed transaction through
// IsOpen rather than a callback, its slot is never cleared concurrently.
func (tx *explicitTransaction) fail(ctx context.Context, err error) {
	tx.mu.Lock()
	if tx.state != txActive {
		tx.mu.Unlock()
		return
	}
	tx.state = txFailed
	tx.mu.Unlock()
	tx.log.Debugf(log.Transaction, tx.logId, "Failed: %s", err)
	_ = tx.holder.release(ctx)
}

// discard abandons an open transaction without network I/O. Used on session
// close, where the holder teardown resets and returns the connection.
func (tx *explicitTransaction) discard() {
	tx.mu.Lock()
	if tx.state != txActive {
		tx.mu.Unlock()
		return
	}
	tx.state = txRolledBack
	tx.mu.Unlock()
	if tx.onClosed != nil {
		tx.onClosed()
	}
}

func (tx *explicitTransaction) stateError(op string) error {
	switch tx.currentState() {
	case txActive:
		return nil
	case txFailed:
		return &errorutil.UsageError{Message: fmt.Sprintf("cannot %s: it has been rolled back because of an error", op)}
	case txSucceeded:
		return &errorutil.UsageError{Message: fmt.Sprintf("cannot %s: it has already been committed", op)}
	case txRolledBack:
		return &errorutil.UsageError{Message: fmt.Sprintf("cannot %s: it has already been rolled back", op)}
	}
	return nil
}

// managedTransaction narrows an explicit transaction to the Run-only surface
// handed to units of work; commit and rollback stay with the executor.
type managedTransaction struct {
	inner *explicitTransaction
}

func (tx *managedTransaction) Run(ctx context.Context, query string, params map[string]any) (Result, error) {
	return tx.inner.Run(ctx, query, params)
}
