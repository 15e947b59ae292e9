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

package testutil

import "fmt"

// LogFake records every log invocation for later assertions.
type LogFake struct {
	Errors []error
	Warns  []string
	Infos  []string
	Debugs []string
}

func (l *LogFake) Error(_ string, _ string, err error) {
	l.Errors = append(l.Errors, err)
}

func (l *LogFake) Warnf(_ string, _ string, msg string, args ...any) {
	l.Warns = append(l.Warns, fmt.Sprintf(msg, args...))
}

func (l *LogFake) Infof(_ string, _ string, msg string, args ...any) {
	l.Infos = append(l.Infos, fmt.Sprintf(msg, args...))
}

func (l *LogFake) Debugf(_ string, _ string, msg string, args ...any) {
	l.Debugs = append(l.Debugs, fmt.Sprintf(msg, args...))
}
