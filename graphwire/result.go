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
	"sync"

	"github.com/graphwire/graphwire-go/graphwire/db"
	"github.com/graphwire/graphwire-go/graphwire/internal/errorutil"
)

// ResultObserver receives the outcome of a result consumed in subscription
// mode. All callbacks are optional; at most one of OnCompleted/OnError is
// invoked, exactly once.
type ResultObserver struct {
	OnKeys      func(keys []string)
	OnRecord    func(record *Record)
	OnCompleted func(summary ResultSummary)
	OnError     func(err error)
}

// Result is the ordered record stream of one query execution plus its
// terminal summary. A result may be consumed through pull iteration
// (Next/Record), eagerly (Collect/Single) or through Subscribe; combining
// modes on one instance is not supported.
type Result interface {
	// Keys returns the field names of the records, waiting for the
	// server's query acknowledgement when it has not arrived yet. The
	// value is resolved once per stream and cached.
	Keys(ctx context.Context) ([]string, error)
	// Next returns true only if there is a record to be processed.
	Next(ctx context.Context) bool
	// Record returns the current record.
	Record() *Record
	// Err returns the latest error that caused Next to return false.
	Err() error
	// PeekRecord returns true if there is a record after the current one,
	// without advancing the stream; record is set to point to it.
	PeekRecord(ctx context.Context, record **Record) bool
	// Collect fetches all remaining records and returns them.
	Collect(ctx context.Context) ([]*Record, error)
	// Single returns one and only one record from the stream. If the
	// stream contains zero or more than one record an error is returned.
	Single(ctx context.Context) (*Record, error)
	// Consume discards all remaining records, instructing the server to
	// throw away whatever was not yet transmitted, and returns the
	// terminal summary.
	Consume(ctx context.Context) (ResultSummary, error)
	// Summary waits for the stream to complete, retaining records for
	// later iteration, and returns the terminal summary. After completion
	// the cached value is returned without network I/O.
	Summary(ctx context.Context) (ResultSummary, error)
	// Subscribe consumes the whole stream through observer callbacks.
	Subscribe(ctx context.Context, observer ResultObserver) error
	// IsOpen reports whether the stream has not reached a terminal state.
	IsOpen() bool
}

// resultStream buffers records between the producing connection and the
// consumer. The producer pushes through the db.StreamObserver callbacks,
// possibly from the connection's read goroutine; the consumer pulls under
// ctx. Flow is throttled by two watermarks: the producer is paused when the
// buffer grows to the high mark and resumed when it drains to the low mark.
type resultStream struct {
	conn   db.Connection
	query  string
	params map[string]any

	mu            sync.Mutex
	changed       chan struct{}
	handle        db.Stream
	pausePending  bool
	keys          []string
	gotKeys       bool
	queue         []*Record
	summary       *db.Summary
	err           error
	done          bool
	paused        bool
	pulledOnce    bool
	cancelled     bool
	lowWatermark  int
	highWatermark int
	protoVersion  db.ProtocolVersion

	record  *Record
	iterErr error

	// onTerminal releases the underlying connection through the owning
	// holder, exactly once, on completion or error. It runs on the
	// producer's goroutine before the terminal state becomes visible to
	// consumers, so its side effects (bookmark pickup, state changes on
	// the owning transaction) are settled by the time a consumer wakes.
	onTerminal  func(summary *db.Summary, err error)
	terminating bool
}

func newResultStream(conn db.Connection, query string, params map[string]any,
	lowWatermark, highWatermark int, onTerminal func(summary *db.Summary, err error)) *resultStream {
	return &resultStream{
		conn:          conn,
		query:         query,
		params:        params,
		changed:       make(chan struct{}),
		lowWatermark:  lowWatermark,
		highWatermark: highWatermark,
		onTerminal:    onTerminal,
	}
}

// attach hands the producer-side handle to the stream. Records may already
// have been delivered before the handle existed; a pause decision taken in
// that window is applied now.
func (r *resultStream) attach(handle db.Stream) {
	r.mu.Lock()
	r.handle = handle
	pause := r.pausePending && !r.done
	r.pausePending = false
	r.mu.Unlock()
	if pause {
		handle.Pause()
	}
}

// bump wakes every consumer waiting for a state change. Callers must hold mu.
func (r *resultStream) bump() {
	close(r.changed)
	r.changed = make(chan struct{})
}

func (r *resultStream) OnKeys(keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.keys = keys
	r.gotKeys = true
	r.bump()
}

func (r *resultStream) OnNext(record *Record) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, record)
	var toPause db.Stream
	if !r.paused && len(r.queue) >= r.highWatermark {
		r.paused = true
		if r.handle != nil {
			toPause = r.handle
		} else {
			r.pausePending = true
		}
	}
	r.bump()
	r.mu.Unlock()
	if toPause != nil {
		toPause.Pause()
	}
}

func (r *resultStream) OnCompleted(summary *db.Summary) {
	r.terminate(summary, nil)
}

func (r *resultStream) OnError(err error) {
	r.terminate(nil, err)
}

func (r *resultStream) terminate(summary *db.Summary, err error) {
	r.mu.Lock()
	if r.done || r.terminating {
		r.mu.Unlock()
		return
	}
	r.terminating = true
	// the summary needs the protocol version, read it while the
	// connection is still ours
	r.protoVersion = r.conn.ProtocolVersion()
	r.mu.Unlock()
	if r.onTerminal != nil {
		r.onTerminal(summary, err)
	}
	r.mu.Lock()
	r.done = true
	r.summary = summary
	r.err = err
	r.bump()
	r.mu.Unlock()
}

// pop dequeues the next record. On exhaustion it yields the cached terminal
// summary or error instead; iteration past the end keeps returning that
// cached value without touching the network.
func (r *resultStream) pop(ctx context.Context) (*Record, *db.Summary, error) {
	for {
		r.mu.Lock()
		var toResume db.Stream
		if !r.pulledOnce {
			// the very first pull lets at least one batch through even
			// when the high watermark is smaller than one record,
			// otherwise tiny fetch sizes would deadlock
			r.pulledOnce = true
			if !r.done {
				r.paused = false
				toResume = r.handle
			}
		}
		if len(r.queue) > 0 {
			record := r.queue[0]
			r.queue = r.queue[1:]
			if r.paused && len(r.queue) <= r.lowWatermark {
				r.paused = false
				toResume = r.handle
			}
			r.mu.Unlock()
			if toResume != nil {
				toResume.Resume()
			}
			return record, nil, nil
		}
		if r.done {
			summary, err := r.summary, r.err
			r.mu.Unlock()
			return nil, summary, err
		}
		if r.paused {
			// an empty buffer is always at or below the low watermark
			r.paused = false
			toResume = r.handle
		}
		ch := r.changed
		r.mu.Unlock()
		if toResume != nil {
			toResume.Resume()
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

func (r *resultStream) peek(ctx context.Context) (*Record, *db.Summary, error) {
	for {
		r.mu.Lock()
		if len(r.queue) > 0 {
			record := r.queue[0]
			r.mu.Unlock()
			return record, nil, nil
		}
		if r.done {
			summary, err := r.summary, r.err
			r.mu.Unlock()
			return nil, summary, err
		}
		var toResume db.Stream
		if r.handle != nil {
			r.paused = false
			toResume = r.handle
		}
		ch := r.changed
		r.mu.Unlock()
		if toResume != nil {
			toResume.Resume()
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

func (r *resultStream) Keys(ctx context.Context) ([]string, error) {
	for {
		r.mu.Lock()
		if r.gotKeys {
			keys := r.keys
			r.mu.Unlock()
			return keys, nil
		}
		if r.done {
			err := r.err
			if err == nil {
				// keys always precede completion, a stream ending
				// without them skipped the query acknowledgement
				err = &db.ProtocolError{Err: "stream completed without keys"}
			}
			r.mu.Unlock()
			return nil, errorutil.WrapError(err)
		}
		ch := r.changed
		r.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *resultStream) Next(ctx context.Context) bool {
	record, _, err := r.pop(ctx)
	if err != nil {
		r.iterErr = err
	}
	r.record = record
	return record != nil
}

func (r *resultStream) Record() *Record {
	return r.record
}

func (r *resultStream) Err() error {
	if r.iterErr != nil {
		return errorutil.WrapError(r.iterErr)
	}
	r.mu.Lock()
	err := r.err
	r.mu.Unlock()
	return errorutil.WrapError(err)
}

func (r *resultStream) PeekRecord(ctx context.Context, record **Record) bool {
	peeked, _, err := r.peek(ctx)
	if err != nil {
		r.iterErr = err
	}
	if record != nil {
		*record = peeked
	}
	return peeked != nil
}

func (r *resultStream) Collect(ctx context.Context) ([]*Record, error) {
	records := make([]*Record, 0, 1024)
	for {
		record, _, err := r.pop(ctx)
		if err != nil {
			return nil, errorutil.WrapError(err)
		}
		if record == nil {
			return records, nil
		}
		records = append(records, record)
	}
}

func (r *resultStream) Single(ctx context.Context) (*Record, error) {
	record, _, err := r.pop(ctx)
	if err != nil {
		return nil, errorutil.WrapError(err)
	}
	if record == nil {
		r.iterErr = &errorutil.UsageError{Message: "result contains no records"}
		return nil, r.iterErr
	}
	single := record

	record, _, err = r.pop(ctx)
	if err != nil {
		return nil, errorutil.WrapError(err)
	}
	if record != nil {
		// there were more records; consume the stream since the caller
		// didn't expect them and should therefore not use them
		_, _ = r.Consume(ctx)
		r.iterErr = &errorutil.UsageError{Message: "result contains more than one record"}
		r.record = nil
		return nil, r.iterErr
	}
	r.record = single
	return single, nil
}

func (r *resultStream) Consume(ctx context.Context) (ResultSummary, error) {
	for {
		r.mu.Lock()
		r.record = nil
		r.queue = nil
		if r.done {
			err := r.err
			r.mu.Unlock()
			if err != nil {
				return nil, errorutil.WrapError(err)
			}
			return r.toResultSummary(), nil
		}
		r.pulledOnce = true
		var toCancel, toResume db.Stream
		if !r.cancelled {
			r.cancelled = true
			toCancel = r.handle
		}
		if r.handle != nil {
			r.paused = false
			toResume = r.handle
		}
		ch := r.changed
		r.mu.Unlock()
		if toCancel != nil {
			toCancel.Cancel()
		}
		if toResume != nil {
			toResume.Resume()
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// buffer waits for the stream to complete while retaining all records for
// later iteration. Flow control is off for the remainder of the stream.
func (r *resultStream) buffer(ctx context.Context) error {
	for {
		r.mu.Lock()
		if r.done {
			err := r.err
			r.mu.Unlock()
			return err
		}
		r.pulledOnce = true
		r.highWatermark = math.MaxInt
		var toResume db.Stream
		if r.handle != nil {
			r.paused = false
			toResume = r.handle
		}
		ch := r.changed
		r.mu.Unlock()
		if toResume != nil {
			toResume.Resume()
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *resultStream) Summary(ctx context.Context) (ResultSummary, error) {
	if err := r.buffer(ctx); err != nil {
		return nil, errorutil.WrapError(err)
	}
	return r.toResultSummary(), nil
}

func (r *resultStream) Subscribe(ctx context.Context, observer ResultObserver) error {
	if observer.OnKeys != nil {
		keys, err := r.Keys(ctx)
		if err != nil {
			if observer.OnError != nil {
				observer.OnError(err)
			}
			return err
		}
		observer.OnKeys(keys)
	}
	for {
		record, _, err := r.pop(ctx)
		if err != nil {
			err = errorutil.WrapError(err)
			if observer.OnError != nil {
				observer.OnError(err)
			}
			return err
		}
		if record == nil {
			if observer.OnCompleted != nil {
				observer.OnCompleted(r.toResultSummary())
			}
			return nil
		}
		if observer.OnRecord != nil {
			observer.OnRecord(record)
		}
	}
}

func (r *resultStream) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.done
}

// cancel tells the producer to discard further records server-side without
// blocking the caller. No-op once the stream reached a terminal state.
func (r *resultStream) cancel() {
	r.mu.Lock()
	if r.done || r.cancelled {
		r.mu.Unlock()
		return
	}
	r.cancelled = true
	handle := r.handle
	r.mu.Unlock()
	if handle != nil {
		handle.Cancel()
	}
}

func (r *resultStream) toResultSummary() ResultSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &resultSummary{
		sum:             r.summary,
		query:           r.query,
		params:          r.params,
		protocolVersion: r.protoVersion,
	}
}
