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

import (
	"context"

	"github.com/graphwire/graphwire-go/graphwire/db"
)

// ProviderFake is a scripted db.ConnectionProvider handing out preconfigured
// connections and recording every acquisition and release.
type ProviderFake struct {
	// Conns are handed out in order; when exhausted, Conn is reused.
	Conns      []db.Connection
	Conn       db.Connection
	AcquireErr error

	Acquired []db.AcquireParams
	Released []db.Connection

	Server    *db.ServerInfo
	VerifyErr error

	MultiDB         bool
	TxConfigSupport bool
	Impersonation   bool
	SessionAuth     bool

	CloseCalled bool
}

func (p *ProviderFake) AcquireConnection(_ context.Context, params db.AcquireParams) (db.Connection, error) {
	p.Acquired = append(p.Acquired, params)
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}
	if idx := len(p.Acquired) - 1; idx < len(p.Conns) {
		return p.Conns[idx], nil
	}
	return p.Conn, nil
}

func (p *ProviderFake) ReleaseConnection(_ context.Context, connection db.Connection) error {
	p.Released = append(p.Released, connection)
	return nil
}

func (p *ProviderFake) SupportsMultiDB(context.Context) (bool, error) {
	return p.MultiDB, nil
}

func (p *ProviderFake) SupportsTransactionConfig(context.Context) (bool, error) {
	return p.TxConfigSupport, nil
}

func (p *ProviderFake) SupportsUserImpersonation(context.Context) (bool, error) {
	return p.Impersonation, nil
}

func (p *ProviderFake) SupportsSessionAuth(context.Context) (bool, error) {
	return p.SessionAuth, nil
}

func (p *ProviderFake) VerifyConnectivityAndGetServerInfo(context.Context) (*db.ServerInfo, error) {
	if p.VerifyErr != nil {
		return nil, p.VerifyErr
	}
	return p.Server, nil
}

func (p *ProviderFake) Close(context.Context) error {
	p.CloseCalled = true
	return nil
}
