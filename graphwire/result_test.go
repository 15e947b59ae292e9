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
)

func makeRecords(n int) []*db.Record {
	records := make([]*db.Record, n)
	for i := range records {
		records[i] = &db.Record{Keys: []string{"n"}, Values: []any{i}}
	}
	return records
}

// startStream runs a scripted query the way a session would: observer first,
// handle attached after the connection returned it.
func startStream(t *testing.T, conn *testutil.ConnFake, fetchSize int, onTerminal func(*db.Summary, error)) *resultStream {
	t.Helper()
	low, high := watermarks(fetchSize)
	res := newResultStream(conn, "RETURN 1", nil, low, high, onTerminal)
	handle, err := conn.Run(context.Background(),
		db.Command{Query: "RETURN 1", FetchSize: fetchSize}, db.TxConfig{Mode: db.WriteMode}, res)
	require.NoError(t, err)
	res.attach(handle)
	return res
}

func TestResultFlowControl(t *testing.T) {
	ctx := context.Background()

	t.Run("pauses producer at high watermark", func(t *testing.T) {
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"n"}, Records: makeRecords(20)},
		}}
		res := startStream(t, conn, 10, nil)
		stream := conn.ActiveStreams[0]
		// nothing flows until the consumer pulls
		assert.Equal(t, 20, stream.Remaining())

		// the first pull starts delivery, which stops at the high mark (7)
		require.True(t, res.Next(ctx))
		assert.Equal(t, 1, stream.Pauses)
		assert.Equal(t, 13, stream.Remaining())

		// draining to the low mark (3) resumes the producer
		for i := 0; i < 3; i++ {
			require.True(t, res.Next(ctx))
		}
		assert.Equal(t, 2, stream.Pauses)
		assert.Equal(t, 9, stream.Remaining())

		count := 4
		for res.Next(ctx) {
			count++
		}
		assert.Equal(t, 20, count)
		assert.NoError(t, res.Err())
		assert.True(t, stream.Finished())
	})

	t.Run("fetch all never pauses", func(t *testing.T) {
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"n"}, Records: makeRecords(50)},
		}}
		res := startStream(t, conn, FetchAll, nil)
		stream := conn.ActiveStreams[0]

		records, err := res.Collect(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 50)
		assert.Equal(t, 0, stream.Pauses)
		assert.True(t, stream.Finished())
	})

	t.Run("fetch size one does not deadlock", func(t *testing.T) {
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"n"}, Records: makeRecords(3)},
		}}
		res := startStream(t, conn, 1, nil)
		count := 0
		for res.Next(ctx) {
			count++
		}
		assert.Equal(t, 3, count)
		assert.NoError(t, res.Err())
	})

	t.Run("buffer disables flow control", func(t *testing.T) {
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"n"}, Records: makeRecords(20)},
		}}
		res := startStream(t, conn, 10, nil)
		require.NoError(t, res.buffer(ctx))
		stream := conn.ActiveStreams[0]
		assert.True(t, stream.Finished())

		// records are still there for iteration after buffering
		records, err := res.Collect(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 20)
	})
}

func TestResultTerminalState(t *testing.T) {
	ctx := context.Background()

	t.Run("iteration past the end is stable and offline", func(t *testing.T) {
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"n"}, Records: makeRecords(2)},
		}}
		res := startStream(t, conn, 10, nil)
		for res.Next(ctx) {
		}
		calls := len(conn.Calls)
		for i := 0; i < 3; i++ {
			assert.False(t, res.Next(ctx))
			assert.Nil(t, res.Record())
			assert.NoError(t, res.Err())
		}
		sum, err := res.Summary(ctx)
		require.NoError(t, err)
		assert.NotNil(t, sum)
		assert.Equal(t, calls, len(conn.Calls))
		assert.False(t, res.IsOpen())
	})

	t.Run("stream error is cached and returned", func(t *testing.T) {
		streamErr := &db.ServerError{Code: "Bolt.ClientError.Statement.SyntaxError", Msg: "bad"}
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"n"}, Records: makeRecords(1), Err: streamErr},
		}}
		res := startStream(t, conn, 10, nil)
		assert.True(t, res.Next(ctx))
		assert.False(t, res.Next(ctx))
		var serverErr *db.ServerError
		require.ErrorAs(t, res.Err(), &serverErr)
		// stays the same on repeated access
		require.ErrorAs(t, res.Err(), &serverErr)
	})

	t.Run("terminal callback fires exactly once", func(t *testing.T) {
		notified := 0
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"n"}, Records: makeRecords(1)},
		}}
		res := startStream(t, conn, 10, func(sum *db.Summary, err error) {
			notified++
			assert.NotNil(t, sum)
			assert.NoError(t, err)
		})
		for res.Next(ctx) {
		}
		_, err := res.Summary(ctx)
		require.NoError(t, err)
		_, err = res.Consume(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, notified)
	})

	t.Run("completion without keys is a protocol violation", func(t *testing.T) {
		res := newResultStream(&testutil.ConnFake{}, "RETURN 1", nil, 3, 7, nil)
		res.OnCompleted(&db.Summary{})
		keys, err := res.Keys(ctx)
		assert.Nil(t, keys)
		var protoErr *db.ProtocolError
		assert.ErrorAs(t, err, &protoErr)
	})
}

func TestResultConsume(t *testing.T) {
	ctx := context.Background()

	t.Run("discards remaining records and cancels the producer", func(t *testing.T) {
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"n"}, Records: makeRecords(20)},
		}}
		res := startStream(t, conn, 10, nil)
		sum, err := res.Consume(ctx)
		require.NoError(t, err)
		assert.NotNil(t, sum)
		assert.Equal(t, 1, conn.ActiveStreams[0].Cancels)
		assert.False(t, res.Next(ctx))
		assert.Nil(t, res.Record())
	})

	t.Run("returns the cached error on a failed stream", func(t *testing.T) {
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"n"}, Err: errors.New("boom")},
		}}
		res := startStream(t, conn, 10, nil)
		_, err := res.Consume(ctx)
		assert.Error(t, err)
	})
}

func TestResultSingle(t *testing.T) {
	ctx := context.Background()

	t.Run("one record", func(t *testing.T) {
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"n"}, Records: makeRecords(1)},
		}}
		res := startStream(t, conn, 10, nil)
		record, err := res.Single(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, record.Values[0])
	})

	t.Run("no records", func(t *testing.T) {
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"n"}},
		}}
		res := startStream(t, conn, 10, nil)
		_, err := res.Single(ctx)
		assert.ErrorContains(t, err, "result contains no records")
	})

	t.Run("more than one record", func(t *testing.T) {
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"n"}, Records: makeRecords(2)},
		}}
		res := startStream(t, conn, 10, nil)
		_, err := res.Single(ctx)
		assert.ErrorContains(t, err, "result contains more than one record")
		assert.Nil(t, res.Record())
	})
}

func TestResultIteration(t *testing.T) {
	ctx := context.Background()

	t.Run("keys", func(t *testing.T) {
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"a", "b"}, Records: makeRecords(1)},
		}}
		res := startStream(t, conn, 10, nil)
		keys, err := res.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, keys)
	})

	t.Run("peek does not advance", func(t *testing.T) {
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"n"}, Records: makeRecords(2)},
		}}
		res := startStream(t, conn, 10, nil)
		var peeked *Record
		require.True(t, res.PeekRecord(ctx, &peeked))
		assert.Equal(t, 0, peeked.Values[0])
		require.True(t, res.Next(ctx))
		assert.Equal(t, 0, res.Record().Values[0])
	})

	t.Run("subscribe delivers everything in order", func(t *testing.T) {
		conn := &testutil.ConnFake{Streams: []testutil.RunStream{
			{Keys: []string{"n"}, Records: makeRecords(5)},
		}}
		res := startStream(t, conn, 10, nil)
		var keys []string
		var seen []int
		completed := false
		err := res.Subscribe(ctx, ResultObserver{
			OnKeys:      func(k []string) { keys = k },
			OnRecord:    func(r *Record) { seen = append(seen, r.Values[0].(int)) },
			OnCompleted: func(ResultSummary) { completed = true },
			OnError:     func(err error) { t.Errorf("unexpected error: %v", err) },
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"n"}, keys)
		assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
		assert.True(t, completed)
	})
}
