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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphwire/graphwire-go/graphwire/db"
	"github.com/graphwire/graphwire-go/graphwire/internal/testutil"
	"github.com/graphwire/graphwire-go/graphwire/log"
)

func makeHolder(provider *testutil.ProviderFake) *connectionHolder {
	return &connectionHolder{
		provider:     provider,
		mode:         db.ReadMode,
		database:     func() string { return "movies" },
		getBookmarks: func(context.Context) (Bookmarks, error) { return Bookmarks{"b1"}, nil },
		log:          log.Void{},
	}
}

func TestConnectionHolder(t *testing.T) {
	ctx := context.Background()

	t.Run("shares one connection between users", func(t *testing.T) {
		conn := &testutil.ConnFake{}
		provider := &testutil.ProviderFake{Conn: conn}
		holder := makeHolder(provider)

		c1, err := holder.acquire(ctx)
		require.NoError(t, err)
		c2, err := holder.acquire(ctx)
		require.NoError(t, err)
		assert.Same(t, c1, c2)
		assert.Len(t, provider.Acquired, 1)

		require.NoError(t, holder.release(ctx))
		assert.Empty(t, provider.Released)
		require.NoError(t, holder.release(ctx))
		assert.Len(t, provider.Released, 1)

		// the holder is reusable after the last release
		_, err = holder.acquire(ctx)
		require.NoError(t, err)
		assert.Len(t, provider.Acquired, 2)
	})

	t.Run("passes acquisition qualifiers through", func(t *testing.T) {
		provider := &testutil.ProviderFake{Conn: &testutil.ConnFake{}}
		holder := makeHolder(provider)
		holder.impersonatedUser = "alice"

		_, err := holder.acquire(ctx)
		require.NoError(t, err)
		params := provider.Acquired[0]
		assert.Equal(t, db.ReadMode, params.Mode)
		assert.Equal(t, "movies", params.Database)
		assert.Equal(t, []string{"b1"}, params.Bookmarks)
		assert.Equal(t, "alice", params.ImpersonatedUser)
	})

	t.Run("wraps provider failures", func(t *testing.T) {
		provider := &testutil.ProviderFake{AcquireErr: errors.New("pool exhausted")}
		holder := makeHolder(provider)
		_, err := holder.acquire(ctx)
		require.Error(t, err)
		assert.ErrorContains(t, err, "unable to acquire connection from provider")
		assert.ErrorContains(t, err, "pool exhausted")
	})

	t.Run("close resets a dirty connection before returning it", func(t *testing.T) {
		conn := &testutil.ConnFake{}
		provider := &testutil.ProviderFake{Conn: conn}
		holder := makeHolder(provider)
		_, err := holder.acquire(ctx)
		require.NoError(t, err)

		require.NoError(t, holder.close(ctx, true))
		assert.Equal(t, []string{"reset"}, conn.Calls)
		assert.Len(t, provider.Released, 1)

		_, err = holder.acquire(ctx)
		assert.ErrorContains(t, err, "connection holder has been closed")
	})

	t.Run("close without dirty work skips the reset", func(t *testing.T) {
		conn := &testutil.ConnFake{}
		provider := &testutil.ProviderFake{Conn: conn}
		holder := makeHolder(provider)
		_, err := holder.acquire(ctx)
		require.NoError(t, err)

		require.NoError(t, holder.close(ctx, false))
		assert.NotContains(t, conn.Calls, "reset")
		assert.Len(t, provider.Released, 1)
	})

	t.Run("close of an empty holder is a no-op", func(t *testing.T) {
		provider := &testutil.ProviderFake{Conn: &testutil.ConnFake{}}
		holder := makeHolder(provider)
		require.NoError(t, holder.close(ctx, true))
		assert.Empty(t, provider.Released)
	})
}
