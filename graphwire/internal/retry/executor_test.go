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

package retry

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphwire/graphwire-go/graphwire/db"
	"github.com/graphwire/graphwire-go/graphwire/internal/errorutil"
	"github.com/graphwire/graphwire-go/graphwire/internal/testutil"
)

var transientErr = &db.ServerError{Code: "Bolt.TransientError.Transaction.DeadlockDetected", Msg: "deadlock"}

// newTestExecutor runs on a simulated clock: time only advances while
// sleeping out a backoff delay, attempts themselves are instant.
func newTestExecutor(maxRetryTime time.Duration, logger *testutil.LogFake) *Executor {
	e := NewExecutor(maxRetryTime, logger, "retry", "test")
	clock := time.Unix(0, 0)
	e.Now = func() time.Time { return clock }
	e.Sleep = func(_ context.Context, d time.Duration) error {
		clock = clock.Add(d)
		return nil
	}
	e.JitterFactor = 0
	return e
}

func TestExecutorBudget(t *testing.T) {
	t.Run("2s budget with 1s initial delay yields three attempts", func(t *testing.T) {
		logger := &testutil.LogFake{}
		e := newTestExecutor(2000*time.Millisecond, logger)
		expired := &errorutil.SessionExpiredError{Message: "server switched role"}
		attempts := 0
		_, err := e.Execute(context.Background(), func(context.Context) (any, error) {
			attempts++
			return nil, expired
		})
		// delays 1s and 2s put the third failure past the budget
		assert.Equal(t, 3, attempts)
		var limit *errorutil.TransactionExecutionLimit
		require.ErrorAs(t, err, &limit)
		assert.Equal(t, 3, limit.Attempts)
		assert.Len(t, limit.Errors, 3)
		assert.ErrorIs(t, err, expired)
		assert.Len(t, logger.Warns, 2)
		assert.Len(t, logger.Errors, 1)
	})

	t.Run("the limit error is itself not retryable", func(t *testing.T) {
		e := newTestExecutor(time.Millisecond, &testutil.LogFake{})
		_, err := e.Execute(context.Background(), func(context.Context) (any, error) {
			return nil, transientErr
		})
		assert.False(t, errorutil.IsRetryable(err))
	})
}

func TestExecutorClassification(t *testing.T) {
	t.Run("non-retryable errors fail fast without logging", func(t *testing.T) {
		logger := &testutil.LogFake{}
		e := newTestExecutor(30*time.Second, logger)
		clientErr := &db.ServerError{Code: "Bolt.ClientError.Statement.SyntaxError", Msg: "bad"}
		attempts := 0
		_, err := e.Execute(context.Background(), func(context.Context) (any, error) {
			attempts++
			return nil, clientErr
		})
		assert.Equal(t, 1, attempts)
		assert.ErrorIs(t, err, clientErr)
		assert.Empty(t, logger.Warns)
		assert.Empty(t, logger.Errors)
	})

	t.Run("recovers after transient failures", func(t *testing.T) {
		logger := &testutil.LogFake{}
		e := newTestExecutor(30*time.Second, logger)
		attempts := 0
		out, err := e.Execute(context.Background(), func(context.Context) (any, error) {
			attempts++
			if attempts < 3 {
				return nil, transientErr
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, 3, attempts)
		assert.Len(t, logger.Warns, 2)
	})
}

func TestExecutorBackoff(t *testing.T) {
	t.Run("delays grow by the multiplier", func(t *testing.T) {
		logger := &testutil.LogFake{}
		e := NewExecutor(10*time.Second, logger, "retry", "test")
		clock := time.Unix(0, 0)
		var slept []time.Duration
		e.Now = func() time.Time { return clock }
		e.Sleep = func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			clock = clock.Add(d)
			return nil
		}
		e.JitterFactor = 0
		_, _ = e.Execute(context.Background(), func(context.Context) (any, error) {
			return nil, transientErr
		})
		require.GreaterOrEqual(t, len(slept), 3)
		assert.Equal(t, time.Second, slept[0])
		assert.Equal(t, 2*time.Second, slept[1])
		assert.Equal(t, 4*time.Second, slept[2])
	})

	t.Run("jitter stays within the configured factor", func(t *testing.T) {
		e := NewExecutor(time.Second, &testutil.LogFake{}, "retry", "test")
		e.Rand = rand.New(rand.NewSource(42))
		for i := 0; i < 1000; i++ {
			d := e.jitter(time.Second)
			assert.GreaterOrEqual(t, d, 800*time.Millisecond)
			assert.LessOrEqual(t, d, 1200*time.Millisecond)
		}
	})
}

func TestExecutorInterruption(t *testing.T) {
	t.Run("cancelled context interrupts the backoff", func(t *testing.T) {
		e := NewExecutor(30*time.Second, &testutil.LogFake{}, "retry", "test")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		attempts := 0
		_, err := e.Execute(ctx, func(context.Context) (any, error) {
			attempts++
			return nil, transientErr
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
		assert.ErrorContains(t, err, context.Canceled.Error())
		assert.ErrorIs(t, err, transientErr)
	})

	t.Run("close interrupts the backoff", func(t *testing.T) {
		e := NewExecutor(30*time.Second, &testutil.LogFake{}, "retry", "test")
		e.InitialDelay = time.Hour
		done := make(chan error, 1)
		go func() {
			_, err := e.Execute(context.Background(), func(context.Context) (any, error) {
				return nil, transientErr
			})
			done <- err
		}()
		// wait for the first attempt to fail and the backoff to start
		time.Sleep(50 * time.Millisecond)
		e.Close()
		select {
		case err := <-done:
			assert.ErrorContains(t, err, "retry executor has been closed")
		case <-time.After(5 * time.Second):
			t.Fatal("execute did not return after close")
		}
	})

	t.Run("closed executor rejects new work", func(t *testing.T) {
		e := NewExecutor(30*time.Second, &testutil.LogFake{}, "retry", "test")
		e.Close()
		e.Close()
		attempts := 0
		_, err := e.Execute(context.Background(), func(context.Context) (any, error) {
			attempts++
			return nil, nil
		})
		assert.ErrorContains(t, err, "retry executor has been closed")
		assert.Equal(t, 0, attempts)
	})
}
