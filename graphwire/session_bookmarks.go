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

// sessionBookmarks tracks the bookmarks one session waits for and produces.
// The configured bookmarks act as a one-shot seed: the first completed
// transaction replaces them with whatever the server returned.
type sessionBookmarks struct {
	bookmarkManager BookmarkManager

	// mu guards bookmarks; a completed auto-commit run reports its
	// bookmark from the connection's read goroutine.
	mu        sync.Mutex
	bookmarks Bookmarks
}

func newSessionBookmarks(bookmarkManager BookmarkManager, bookmarks Bookmarks) *sessionBookmarks {
	return &sessionBookmarks{
		bookmarkManager: bookmarkManager,
		bookmarks:       cleanupBookmarks(bookmarks),
	}
}

func (sb *sessionBookmarks) currentBookmarks() Bookmarks {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.bookmarks
}

func (sb *sessionBookmarks) lastBookmark() string {
	bookmarks := sb.currentBookmarks()
	count := len(bookmarks)
	if count == 0 {
		return ""
	}
	return bookmarks[count-1]
}

// getBookmarks resolves the effective wait-for set for the next transaction:
// the union of the manager's bookmarks for the database (when a manager is
// configured) and the session's own current bookmarks.
func (sb *sessionBookmarks) getBookmarks(ctx context.Context, database string) (Bookmarks, error) {
	result := collections.NewSet(sb.currentBookmarks())
	if sb.bookmarkManager != nil {
		managed, err := sb.bookmarkManager.GetBookmarks(ctx, database)
		if err != nil {
			return nil, err
		}
		result.AddAll(managed)
	}
	return result.Values(), nil
}

// replaceBookmarks records a bookmark produced by a completed transaction,
// notifying the bookmark manager (if any) so other sessions observe it.
func (sb *sessionBookmarks) replaceBookmarks(ctx context.Context, database string, previousBookmarks Bookmarks, newBookmark string) error {
	if len(newBookmark) == 0 {
		return nil
	}
	if sb.bookmarkManager != nil {
		if err := sb.bookmarkManager.UpdateBookmarks(ctx, database, previousBookmarks, []string{newBookmark}); err != nil {
			return err
		}
	}
	sb.replaceSessionBookmarks(newBookmark)
	return nil
}

func (sb *sessionBookmarks) replaceSessionBookmarks(newBookmark string) {
	if len(newBookmark) == 0 {
		return
	}
	sb.mu.Lock()
	sb.bookmarks = []string{newBookmark}
	sb.mu.Unlock()
}

// Remove empty string bookmarks to check for "bad" callers.
// To avoid allocating, first check if this is a problem.
func cleanupBookmarks(bookmarks Bookmarks) Bookmarks {
	hasBad := false
	for _, b := range bookmarks {
		if len(b) == 0 {
			hasBad = true
			break
		}
	}

	if !hasBad {
		return bookmarks
	}

	cleaned := make(Bookmarks, 0, len(bookmarks)-1)
	for _, b := range bookmarks {
		if len(b) > 0 {
			cleaned = append(cleaned, b)
		}
	}
	return cleaned
}
