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

package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerErrorParsing(t *testing.T) {
	t.Run("splits a four part code", func(t *testing.T) {
		err := &ServerError{Code: "Bolt.ClientError.Statement.SyntaxError", Msg: "bad"}
		assert.Equal(t, "ClientError", err.Classification())
		assert.Equal(t, "Statement", err.Category())
		assert.Equal(t, "SyntaxError", err.Title())
		assert.Contains(t, err.Error(), "Bolt.ClientError.Statement.SyntaxError")
	})

	t.Run("tolerates malformed codes", func(t *testing.T) {
		err := &ServerError{Code: "Garbage", Msg: "?"}
		assert.Empty(t, err.Classification())
		assert.False(t, err.IsRetriable())
	})

	t.Run("reclassifies terminated transactions", func(t *testing.T) {
		err := &ServerError{Code: "Bolt.TransientError.Transaction.Terminated"}
		assert.Equal(t, "ClientError", err.Classification())
		assert.Equal(t, "Bolt.ClientError.Transaction.Terminated", err.Code)
		assert.False(t, err.IsRetriable())

		err = &ServerError{Code: "Bolt.TransientError.Transaction.LockClientStopped"}
		assert.Equal(t, "ClientError", err.Classification())
		assert.False(t, err.IsRetriable())
	})
}

func TestServerErrorRetriable(t *testing.T) {
	cases := []struct {
		code      string
		retriable bool
	}{
		{"Bolt.TransientError.Transaction.DeadlockDetected", true},
		{"Bolt.TransientError.Network.CommunicationError", true},
		{"Bolt.ClientError.Cluster.NotALeader", true},
		{"Bolt.ClientError.General.ForbiddenOnReadOnlyDatabase", true},
		{"Bolt.TransientError.Database.DatabaseUnavailable", true},
		{"Bolt.ClientError.Security.AuthorizationExpired", true},
		{"Bolt.ClientError.Security.Unauthorized", false},
		{"Bolt.ClientError.Statement.SyntaxError", false},
		{"Bolt.DatabaseError.General.UnknownError", false},
	}
	for _, c := range cases {
		t.Run(c.code, func(t *testing.T) {
			err := &ServerError{Code: c.code}
			assert.Equal(t, c.retriable, err.IsRetriable())
		})
	}

	t.Run("marked errors retry regardless of code", func(t *testing.T) {
		err := &ServerError{Code: "Bolt.ClientError.Statement.SyntaxError"}
		err.MarkRetriable()
		assert.True(t, err.IsRetriable())
	})
}
