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

package errorutil

import (
	"fmt"
	"io"
	"net"
)

// UsageError represents errors caused by incorrect usage of the driver API,
// for example running a query on a closed session. Surfaced without any
// network I/O.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// ConnectivityError represents errors caused by the driver not being able to
// reach the database, or lost connections.
type ConnectivityError struct {
	Inner error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("ConnectivityError: %s", e.Inner.Error())
}

func (e *ConnectivityError) Unwrap() error {
	return e.Inner
}

// SessionExpiredError means the session can no longer satisfy the criteria
// under which it was acquired, e.g. a server no longer accepts write
// requests. A new session needs to be created, retrying is safe.
type SessionExpiredError struct {
	Message string
}

func (e *SessionExpiredError) Error() string {
	if e.Message == "" {
		return "SessionExpiredError"
	}
	return fmt.Sprintf("SessionExpiredError: %s", e.Message)
}

// ServiceUnavailableError means no server could be reached to perform the
// requested operation. Retrying is safe.
type ServiceUnavailableError struct {
	Inner error
}

func (e *ServiceUnavailableError) Error() string {
	if e.Inner == nil {
		return "ServiceUnavailableError"
	}
	return fmt.Sprintf("ServiceUnavailableError: %s", e.Inner.Error())
}

func (e *ServiceUnavailableError) Unwrap() error {
	return e.Inner
}

func CombineAllErrors(errs ...error) error {
	if len(errs) == 0 {
		return nil
	}
	result := errs[0]
	for _, err := range errs[1:] {
		result = CombineErrors(result, err)
	}
	return result
}

func CombineErrors(err1, err2 error) error {
	if err2 == nil {
		return err1
	}
	if err1 == nil {
		return err2
	}
	return fmt.Errorf("error %v occurred after previous error %w", err2, err1)
}

// WrapError casts low-level transport failures into their user-facing
// classification. Errors that already carry a classification pass through
// untouched.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	if err == io.EOF {
		return &ConnectivityError{Inner: err}
	}
	if netErr, ok := err.(net.Error); ok {
		return &ConnectivityError{Inner: netErr}
	}
	return err
}
