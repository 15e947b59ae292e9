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

// Package testutil provides hand-rolled fakes of the collaborator
// interfaces, scripted per test.
package testutil

import (
	"context"
	"sync"

	"github.com/graphwire/graphwire-go/graphwire/db"
)

// RunStream scripts the outcome of one Run or RunInTransaction call.
type RunStream struct {
	Keys    []string
	Records []*db.Record
	// Summary is the terminal summary, defaulted when nil and Err is nil.
	Summary *db.Summary
	// Err makes the stream terminate with OnError instead of OnCompleted.
	Err error
}

// ConnFake is a scripted db.Connection. Streams play synchronously on the
// caller's goroutine and honor pause, resume and cancel, like a real
// connection's read loop would between batches. Every interface call is
// appended to Calls so tests can assert ordering.
type ConnFake struct {
	Name          string
	Closed        bool
	BookmarkValue string
	Proto         db.ProtocolVersion

	RunErr      error
	BeginErr    error
	CommitErr   error
	RollbackErr error
	ResetErr    error

	// Streams are consumed in call order; calls beyond the script get an
	// empty stream completing immediately.
	Streams   []RunStream
	streamIdx int

	// Async plays each stream from its own goroutine instead, like a real
	// connection's read loop. Async streams are not tracked in
	// ActiveStreams and do not record streamDone.
	Async bool

	Calls         []string
	Commands      []db.Command
	TxConfigs     []db.TxConfig
	ActiveStreams []*StreamFake
}

func (c *ConnFake) Run(_ context.Context, cmd db.Command, txConfig db.TxConfig, obs db.StreamObserver) (db.Stream, error) {
	c.Calls = append(c.Calls, "run")
	c.Commands = append(c.Commands, cmd)
	c.TxConfigs = append(c.TxConfigs, txConfig)
	if c.RunErr != nil {
		return nil, c.RunErr
	}
	return c.startStream(obs), nil
}

func (c *ConnFake) BeginTransaction(_ context.Context, txConfig db.TxConfig) error {
	c.Calls = append(c.Calls, "begin")
	c.TxConfigs = append(c.TxConfigs, txConfig)
	return c.BeginErr
}

func (c *ConnFake) RunInTransaction(_ context.Context, cmd db.Command, obs db.StreamObserver) (db.Stream, error) {
	c.Calls = append(c.Calls, "runInTx")
	c.Commands = append(c.Commands, cmd)
	if c.RunErr != nil {
		return nil, c.RunErr
	}
	return c.startStream(obs), nil
}

func (c *ConnFake) CommitTransaction(context.Context) error {
	c.Calls = append(c.Calls, "commit")
	return c.CommitErr
}

func (c *ConnFake) RollbackTransaction(context.Context) error {
	c.Calls = append(c.Calls, "rollback")
	return c.RollbackErr
}

func (c *ConnFake) ResetAndFlush(context.Context) error {
	c.Calls = append(c.Calls, "reset")
	return c.ResetErr
}

func (c *ConnFake) Bookmark() string {
	return c.BookmarkValue
}

func (c *ConnFake) IsOpen() bool {
	return !c.Closed
}

func (c *ConnFake) ProtocolVersion() db.ProtocolVersion {
	return c.Proto
}

func (c *ConnFake) ServerName() string {
	if c.Name == "" {
		return "serverFake"
	}
	return c.Name
}

func (c *ConnFake) startStream(obs db.StreamObserver) db.Stream {
	script := RunStream{}
	if c.streamIdx < len(c.Streams) {
		script = c.Streams[c.streamIdx]
		c.streamIdx++
	}
	if script.Summary == nil && script.Err == nil {
		script.Summary = &db.Summary{Bookmark: c.BookmarkValue}
	}
	if c.Async {
		return newAsyncStreamFake(obs, script)
	}
	stream := &StreamFake{
		obs:     obs,
		records: script.Records,
		summary: script.Summary,
		err:     script.Err,
		paused:  true,
		onFinish: func() {
			c.Calls = append(c.Calls, "streamDone")
		},
	}
	c.ActiveStreams = append(c.ActiveStreams, stream)
	obs.OnKeys(script.Keys)
	return stream
}

// StreamFake plays one scripted stream. It starts idle, like a real
// connection waiting for demand: the first Resume kicks off delivery, which
// then runs inline until the script is exhausted or the consumer paused it.
// A pause taken inside an observer callback stops delivery immediately.
type StreamFake struct {
	obs      db.StreamObserver
	records  []*db.Record
	summary  *db.Summary
	err      error
	onFinish func()

	next      int
	paused    bool
	cancelled bool
	finished  bool

	Pauses  int
	Resumes int
	Cancels int
}

func (s *StreamFake) Pause() {
	s.Pauses++
	s.paused = true
}

func (s *StreamFake) Resume() {
	s.Resumes++
	if !s.paused {
		return
	}
	s.paused = false
	s.feed()
}

func (s *StreamFake) Cancel() {
	s.Cancels++
	if s.cancelled {
		return
	}
	s.cancelled = true
	// the server discards the rest and still sends a terminal summary
	s.finish()
}

func (s *StreamFake) feed() {
	for !s.finished && !s.paused {
		if s.cancelled || s.next >= len(s.records) {
			s.finish()
			return
		}
		record := s.records[s.next]
		s.next++
		s.obs.OnNext(record)
	}
}

func (s *StreamFake) finish() {
	if s.finished {
		return
	}
	s.finished = true
	if s.onFinish != nil {
		s.onFinish()
	}
	if s.err != nil {
		s.obs.OnError(s.err)
		return
	}
	s.obs.OnCompleted(s.summary)
}

// Finished reports whether the stream reached its terminal callback.
func (s *StreamFake) Finished() bool {
	return s.finished
}

// Remaining returns the count of scripted records not yet delivered.
func (s *StreamFake) Remaining() int {
	return len(s.records) - s.next
}

// AsyncStreamFake plays one scripted stream from its own goroutine, the way
// a pipelined connection pushes batches as they come off the wire. Pause,
// Resume and Cancel may be called from the consumer's goroutine at any time.
type AsyncStreamFake struct {
	obs     db.StreamObserver
	records []*db.Record
	summary *db.Summary
	err     error

	mu        sync.Mutex
	cond      *sync.Cond
	paused    bool
	cancelled bool
}

func newAsyncStreamFake(obs db.StreamObserver, script RunStream) *AsyncStreamFake {
	s := &AsyncStreamFake{
		obs:     obs,
		records: script.Records,
		summary: script.Summary,
		err:     script.Err,
	}
	s.cond = sync.NewCond(&s.mu)
	go s.loop(script.Keys)
	return s
}

func (s *AsyncStreamFake) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *AsyncStreamFake) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *AsyncStreamFake) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *AsyncStreamFake) loop(keys []string) {
	s.obs.OnKeys(keys)
	for _, record := range s.records {
		s.mu.Lock()
		for s.paused && !s.cancelled {
			s.cond.Wait()
		}
		cancelled := s.cancelled
		s.mu.Unlock()
		if cancelled {
			break
		}
		s.obs.OnNext(record)
	}
	if s.err != nil {
		s.obs.OnError(s.err)
		return
	}
	s.obs.OnCompleted(s.summary)
}
