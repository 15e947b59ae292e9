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

// Package retry implements the transaction executor: it runs a unit of work
// that begins, uses and commits a transaction, transparently retrying it on
// transient failures with exponential backoff, bounded by a wall-clock
// budget rather than an attempt count.
package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/graphwire/graphwire-go/graphwire/internal/errorutil"
	"github.com/graphwire/graphwire-go/graphwire/log"
)

const (
	DefaultInitialDelay = 1 * time.Second
	DefaultMultiplier   = 2.0
	DefaultJitterFactor = 0.2
)

// Executor retries a unit of work on transient failures. Attempts are
// strictly sequential, the only asynchrony is the backoff delay itself,
// which Close cancels.
type Executor struct {
	MaxRetryTime time.Duration
	InitialDelay time.Duration
	Multiplier   float64
	JitterFactor float64
	Log          log.Logger
	LogName      string
	LogId        string
	Now          func() time.Time
	// Sleep waits out one backoff delay. It returns a non-nil error when
	// the wait was interrupted by ctx or by Close.
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  *rand.Rand

	closed    chan struct{}
	closeOnce sync.Once
}

func NewExecutor(maxRetryTime time.Duration, logger log.Logger, logName, logId string) *Executor {
	e := &Executor{
		MaxRetryTime: maxRetryTime,
		InitialDelay: DefaultInitialDelay,
		Multiplier:   DefaultMultiplier,
		JitterFactor: DefaultJitterFactor,
		Log:          logger,
		LogName:      logName,
		LogId:        logId,
		Now:          time.Now,
		Rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		closed:       make(chan struct{}),
	}
	e.Sleep = e.wait
	return e
}

// Execute runs work until it succeeds, fails with a non-retryable error or
// the retry time budget is exhausted. The budget bounds the elapsed
// wall-clock time since the first attempt, delays included; there is no
// attempt-count limit.
func (e *Executor) Execute(ctx context.Context, work func(ctx context.Context) (any, error)) (any, error) {
	start := e.Now()
	delay := e.InitialDelay
	var errs []error
	attempts := 0
	for {
		select {
		case <-e.closed:
			return nil, &errorutil.UsageError{Message: "retry executor has been closed"}
		default:
		}
		attempts++
		result, err := work(ctx)
		if err == nil {
			return result, nil
		}
		if !errorutil.IsRetryable(err) {
			return nil, err
		}
		errs = append(errs, err)
		elapsed := e.Now().Sub(start)
		if elapsed > e.MaxRetryTime {
			limit := &errorutil.TransactionExecutionLimit{Attempts: attempts, Elapsed: elapsed, Errors: errs}
			e.Log.Error(e.LogName, e.LogId, limit)
			return nil, limit
		}
		wait := e.jitter(delay)
		e.Log.Warnf(e.LogName, e.LogId, "Transaction failed and will be retried in %s: %s", wait, err)
		if sleepErr := e.Sleep(ctx, wait); sleepErr != nil {
			return nil, errorutil.CombineErrors(err, sleepErr)
		}
		delay = time.Duration(float64(delay) * e.Multiplier)
	}
}

// Close cancels a pending backoff delay and prevents further attempts.
// Safe to call multiple times.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)
	})
}

// jitter spreads the delay uniformly in [d*(1-f), d*(1+f)] to avoid
// thundering herds of simultaneously retrying clients.
func (e *Executor) jitter(d time.Duration) time.Duration {
	f := e.JitterFactor
	if f <= 0 {
		return d
	}
	lo := float64(d) * (1 - f)
	span := 2 * f * float64(d)
	return time.Duration(lo + e.Rand.Float64()*span)
}

func (e *Executor) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.closed:
		return &errorutil.UsageError{Message: "retry executor has been closed"}
	}
}
