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

// Package graphwire is a client driver for Bolt-speaking graph databases.
//
// The package implements the session/transaction lifecycle engine: sessions
// multiplexed onto provider-owned physical connections, lazily streamed
// results with watermark-driven flow control, an explicit transaction state
// machine, transparent retry of managed transactions and causal-consistency
// bookmark propagation. Wire-level protocol handling, pooling and routing
// are supplied by a db.ConnectionProvider implementation.
package graphwire

import "github.com/graphwire/graphwire-go/graphwire/db"

// Record is one row of a result.
type Record = db.Record
