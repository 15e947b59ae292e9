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
	"fmt"
	"math"
	"time"

	"github.com/graphwire/graphwire-go/graphwire/log"
)

// AccessMode defines the type of access a session or transaction requires,
// used by routing-aware providers to pick a suitable cluster member.
type AccessMode int

const (
	// AccessModeWrite makes the driver route to writers (leaders).
	AccessModeWrite AccessMode = 0
	// AccessModeRead makes the driver route to readers (followers/replicas).
	AccessModeRead AccessMode = 1
)

// FetchAll turns off fetching records in batches: the whole stream is pulled
// without ever pausing the producer.
const FetchAll = -1

// FetchDefault lets the driver decide fetch size.
const FetchDefault = 0

// Config holds driver-wide settings.
type Config struct {
	// MaxTransactionRetryTime is the wall-clock budget for retrying managed
	// transactions, delays included.
	//
	// default: 30s
	MaxTransactionRetryTime time.Duration
	// FetchSize is the number of records to buffer per network batch.
	// FetchAll disables batching.
	//
	// default: 1000
	FetchSize int
	// Logger receives driver-internal events. Nil disables logging.
	Logger log.Logger
}

func defaultConfig() *Config {
	return &Config{
		MaxTransactionRetryTime: 30 * time.Second,
		FetchSize:               1000,
		Logger:                  log.Void{},
	}
}

// SessionConfig configures one session.
type SessionConfig struct {
	// AccessMode used when no explicit mode is specified. default: write.
	AccessMode AccessMode
	// Bookmarks this session should initially wait for. A one-shot seed:
	// replaced by whatever the session's own transactions produce.
	Bookmarks Bookmarks
	// DatabaseName to run queries against, empty for the server's home
	// database.
	DatabaseName string
	// FetchSize overrides the driver-wide fetch size when not FetchDefault.
	FetchSize int
	// ImpersonatedUser is the identity queries run on behalf of, distinct
	// from the authenticated principal. Empty for no impersonation.
	ImpersonatedUser string
	// BookmarkManager shares causal-consistency state with other sessions.
	// Nil disables bookmark management; the session then only chains its
	// own transactions.
	BookmarkManager BookmarkManager
	// NotificationFilter is passed through to the server untouched.
	NotificationFilter string
	// Auth overrides the driver-level credentials for this session, when
	// the provider supports session auth.
	Auth map[string]any
}

// TransactionConfig holds the settings for explicit and managed transactions.
type TransactionConfig struct {
	// Timeout is the server-side transaction timeout. Zero makes the server
	// fail instantly locked, negative values are rejected.
	Timeout time.Duration
	// Metadata attached to the transaction, visible in server-side
	// monitoring.
	Metadata map[string]any
}

// WithTxTimeout returns a transaction configurer setting the timeout.
//
//	session.Run(ctx, "MATCH (n:Person) RETURN n", nil, graphwire.WithTxTimeout(5*time.Second))
func WithTxTimeout(timeout time.Duration) func(*TransactionConfig) {
	return func(config *TransactionConfig) {
		config.Timeout = timeout
	}
}

// WithTxMetadata returns a transaction configurer attaching metadata.
func WithTxMetadata(metadata map[string]any) func(*TransactionConfig) {
	return func(config *TransactionConfig) {
		config.Metadata = metadata
	}
}

// math.MinInt marks "timeout not set", distinguishing it from an explicit
// zero which the server interprets as "fail instantly when locked".
func defaultTransactionConfig() TransactionConfig {
	return TransactionConfig{Timeout: math.MinInt, Metadata: nil}
}

func validateTransactionConfig(config TransactionConfig) error {
	if config.Timeout != math.MinInt && config.Timeout < 0 {
		return &UsageError{Message: fmt.Sprintf("negative transaction timeouts are not allowed, given: %d", config.Timeout)}
	}
	return nil
}
