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

	"github.com/pkg/errors"

	"github.com/graphwire/graphwire-go/graphwire/db"
	"github.com/graphwire/graphwire-go/graphwire/internal/errorutil"
	"github.com/graphwire/graphwire-go/graphwire/log"
)

// connectionHolder binds a (mode, database, bookmarks, impersonated user)
// tuple to at most one physical connection at a time and reference-counts
// its logical users. A holder is exclusively owned by the session that
// created it; the connection it wraps goes back to the provider on the last
// release and must not be touched afterwards.
type connectionHolder struct {
	mu                     sync.Mutex
	provider               db.ConnectionProvider
	mode                   db.AccessMode
	database               func() string
	impersonatedUser       string
	auth                   map[string]any
	getBookmarks           func(ctx context.Context) (Bookmarks, error)
	onDatabaseNameResolved func(database string)
	log                    log.Logger
	logId                  string

	conn   db.Connection
	refs   int
	closed bool
}

// acquire registers one more logical user and returns the held connection,
// lazily acquiring it from the provider on first use. Repeated calls are
// idempotent with respect to the physical connection: they return the same
// one until the last user released it.
func (h *connectionHolder) acquire(ctx context.Context) (db.Connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, &errorutil.UsageError{Message: "connection holder has been closed"}
	}
	if h.conn != nil {
		h.refs++
		return h.conn, nil
	}
	bookmarks, err := h.getBookmarks(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := h.provider.AcquireConnection(ctx, db.AcquireParams{
		Mode:                   h.mode,
		Database:               h.database(),
		Bookmarks:              bookmarks,
		ImpersonatedUser:       h.impersonatedUser,
		Auth:                   h.auth,
		OnDatabaseNameResolved: h.onDatabaseNameResolved,
	})
	if err != nil {
		return nil, errors.Wrap(errorutil.WrapError(err), "unable to acquire connection from provider")
	}
	h.conn = conn
	h.refs = 1
	return conn, nil
}

// release unregisters one logical user. The last user out returns the
// connection to the provider; the holder is empty (but reusable) afterwards.
func (h *connectionHolder) release(ctx context.Context) error {
	h.mu.Lock()
	if h.conn == nil {
		h.mu.Unlock()
		return nil
	}
	h.refs--
	if h.refs > 0 {
		h.mu.Unlock()
		return nil
	}
	conn := h.conn
	h.conn = nil
	h.refs = 0
	h.mu.Unlock()
	return h.provider.ReleaseConnection(ctx, conn)
}

// close returns the held connection regardless of remaining users and makes
// the holder unusable. When work was left open on the connection (an
// unfinished transaction) it is reset first so the provider gets it back in
// a clean state.
func (h *connectionHolder) close(ctx context.Context, dirty bool) error {
	h.mu.Lock()
	h.closed = true
	conn := h.conn
	h.conn = nil
	h.refs = 0
	h.mu.Unlock()
	if conn == nil {
		return nil
	}
	var resetErr error
	if dirty && conn.IsOpen() {
		if resetErr = conn.ResetAndFlush(ctx); resetErr != nil {
			h.log.Warnf(log.Session, h.logId, "reset before release failed: %s", resetErr)
		}
	}
	return errorutil.CombineErrors(resetErr, h.provider.ReleaseConnection(ctx, conn))
}
