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

	"github.com/graphwire/graphwire-go/graphwire/internal/collections"
)

// Bookmarks is a holder for opaque server-side bookmarks which are used for
// causally-chained sessions. The empty set is a valid value meaning "no
// causal requirement". See also CombineBookmarks.
type Bookmarks = []string

// BookmarkManager centralizes bookmark supply and notification so that
// multiple sessions stay causally consistent. Implementations shared across
// sessions must be safe for concurrent use.
type BookmarkManager interface {
	// UpdateBookmarks reconciles the bookmarks of the specified database:
	// previousBookmarks are the ones the completing unit of work waited
	// for, newBookmarks the ones its completion produced.
	UpdateBookmarks(ctx context.Context, database string, previousBookmarks, newBookmarks Bookmarks) error

	// GetAllBookmarks returns the bookmarks of every tracked database.
	// The order of the returned slice is not guaranteed.
	GetAllBookmarks(ctx context.Context) (Bookmarks, error)

	// GetBookmarks returns the bookmarks associated with the specified
	// database. The order of the returned slice is not guaranteed.
	GetBookmarks(ctx context.Context, database string) (Bookmarks, error)

	// Forget removes the given databases' bookmarks.
	Forget(ctx context.Context, databases ...string) error
}

// BookmarkManagerConfig configures the bookmark manager returned by
// NewBookmarkManager.
type BookmarkManagerConfig struct {
	// InitialBookmarks per database.
	InitialBookmarks map[string]Bookmarks

	// BookmarkSupplier provides external bookmarks on top of the tracked
	// ones. Optional.
	BookmarkSupplier BookmarkSupplier

	// BookmarkConsumer is called whenever the bookmarks of a database got
	// updated, with the database and the new bookmarks. Optional.
	BookmarkConsumer func(ctx context.Context, database string, bookmarks Bookmarks) error
}

// BookmarkSupplier feeds externally stored bookmarks into a bookmark manager.
type BookmarkSupplier interface {
	GetAllBookmarks(ctx context.Context) (Bookmarks, error)
	GetBookmarks(ctx context.Context, database string) (Bookmarks, error)
}

type bookmarkManager struct {
	bookmarks *sync.Map
	supplier  BookmarkSupplier
	consumer  func(context.Context, string, Bookmarks) error
}

func (b *bookmarkManager) UpdateBookmarks(ctx context.Context, database string, previousBookmarks, newBookmarks Bookmarks) error {
	if len(newBookmarks) == 0 {
		return nil
	}
	var bookmarksToNotify Bookmarks
	storedNewBookmarks := collections.NewSet(newBookmarks)
	if rawCurrentBookmarks, loaded := b.bookmarks.LoadOrStore(database, storedNewBookmarks); !loaded {
		bookmarksToNotify = storedNewBookmarks.Values()
	} else {
		currentBookmarks := rawCurrentBookmarks.(collections.Set[string])
		currentBookmarks.RemoveAll(previousBookmarks)
		currentBookmarks.AddAll(newBookmarks)
		bookmarksToNotify = currentBookmarks.Values()
	}
	if b.consumer != nil {
		return b.consumer(ctx, database, bookmarksToNotify)
	}
	return nil
}

func (b *bookmarkManager) GetAllBookmarks(ctx context.Context) (Bookmarks, error) {
	allBookmarks := collections.NewSet([]string{})
	if b.supplier != nil {
		bookmarks, err := b.supplier.GetAllBookmarks(ctx)
		if err != nil {
			return nil, err
		}
		allBookmarks.AddAll(bookmarks)
	}
	b.bookmarks.Range(func(database, rawBookmarks any) bool {
		bookmarks := rawBookmarks.(collections.Set[string])
		allBookmarks.Union(bookmarks)
		return true
	})
	return allBookmarks.Values(), nil
}

func (b *bookmarkManager) GetBookmarks(ctx context.Context, database string) (Bookmarks, error) {
	var extraBookmarks Bookmarks
	if b.supplier != nil {
		bookmarks, err := b.supplier.GetBookmarks(ctx, database)
		if err != nil {
			return nil, err
		}
		extraBookmarks = bookmarks
	}
	rawBookmarks, found := b.bookmarks.Load(database)
	if !found {
		return extraBookmarks, nil
	}
	bookmarks := rawBookmarks.(collections.Set[string]).Copy()
	if extraBookmarks == nil {
		return bookmarks.Values(), nil
	}
	bookmarks.AddAll(extraBookmarks)
	return bookmarks.Values(), nil
}

func (b *bookmarkManager) Forget(ctx context.Context, databases ...string) error {
	for _, database := range databases {
		b.bookmarks.Delete(database)
	}
	return nil
}

// NewBookmarkManager returns a database-keyed bookmark manager suitable for
// sharing between sessions.
func NewBookmarkManager(config BookmarkManagerConfig) BookmarkManager {
	return &bookmarkManager{
		bookmarks: initializeBookmarks(config.InitialBookmarks),
		supplier:  config.BookmarkSupplier,
		consumer:  config.BookmarkConsumer,
	}
}

func initializeBookmarks(allBookmarks map[string]Bookmarks) *sync.Map {
	var initialBookmarks sync.Map
	for database, bookmarks := range allBookmarks {
		initialBookmarks.Store(database, collections.NewSet(bookmarks))
	}
	return &initialBookmarks
}

// CombineBookmarks merges multiple Bookmarks instances into one, suitable for
// seeding a session that must observe the writes of several others.
func CombineBookmarks(bookmarks ...Bookmarks) Bookmarks {
	var lenSum int
	for _, b := range bookmarks {
		lenSum += len(b)
	}
	res := make([]string, lenSum)
	var i int
	for _, b := range bookmarks {
		i += copy(res[i:], b)
	}
	return res
}
