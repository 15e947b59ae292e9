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

package log

import (
	"fmt"
	"os"
	"time"
)

const timeFormat = "2006-01-02 15:04:05.000"

// Console is a Logger that writes to stderr/stdout.
//
//	2020-05-03 12:39:45.001  ERROR  [session f3a1b2c4] Failed to connect
//	2020-05-03 12:39:45.001   INFO  [session f3a1b2c4] Custom message
type Console struct {
	Errors bool
	Warns  bool
	Infos  bool
	Debugs bool
}

func (l *Console) Error(name, id string, err error) {
	if !l.Errors {
		return
	}
	fmt.Fprintf(os.Stderr, "%s  ERROR  [%s %s] %s\n", time.Now().Format(timeFormat), name, id, err.Error())
}

func (l *Console) Warnf(name, id string, msg string, args ...any) {
	if !l.Warns {
		return
	}
	fmt.Fprintf(os.Stdout, "%s   WARN  [%s %s] %s\n", time.Now().Format(timeFormat), name, id, fmt.Sprintf(msg, args...))
}

func (l *Console) Infof(name, id string, msg string, args ...any) {
	if !l.Infos {
		return
	}
	fmt.Fprintf(os.Stdout, "%s   INFO  [%s %s] %s\n", time.Now().Format(timeFormat), name, id, fmt.Sprintf(msg, args...))
}

func (l *Console) Debugf(name, id string, msg string, args ...any) {
	if !l.Debugs {
		return
	}
	fmt.Fprintf(os.Stdout, "%s  DEBUG  [%s %s] %s\n", time.Now().Format(timeFormat), name, id, fmt.Sprintf(msg, args...))
}

// Void is a Logger that discards everything.
type Void struct{}

func (v Void) Error(string, string, error)           {}
func (v Void) Warnf(string, string, string, ...any)  {}
func (v Void) Infof(string, string, string, ...any)  {}
func (v Void) Debugf(string, string, string, ...any) {}
