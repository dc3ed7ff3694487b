// Copyright 2026 The Kitchen Konnect Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memory provides in-process implementations of every repository,
// used by tests and by STORE_DRIVER=memory.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/identity"
	"github.com/kitchenkonnect/kkauth/internal/store"
	"github.com/kitchenkonnect/kkauth/internal/token"
	"github.com/kitchenkonnect/kkauth/internal/verification"
)

// Store holds all state. Transactions are serialized and roll back by
// restoring a snapshot taken when they began. Writes outside a transaction
// wait for any open one, so a rollback never erases them.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data data
}

type data struct {
	users       map[string]identity.User
	credentials map[string]identity.Credentials
	groups      map[string]struct{}
	members     map[string][]string
	requests    map[string]verification.Request
	revoked     map[string]token.Revocation
	families    map[string]time.Time
	tokens      map[string]token.Record
}

type txKey struct{}

var _ store.Transactor = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{data: data{
		users:       make(map[string]identity.User),
		credentials: make(map[string]identity.Credentials),
		groups:      make(map[string]struct{}),
		members:     make(map[string][]string),
		requests:    make(map[string]verification.Request),
		revoked:     make(map[string]token.Revocation),
		families:    make(map[string]time.Time),
		tokens:      make(map[string]token.Record),
	}}
}

func (d data) clone() data {
	members := make(map[string][]string, len(d.members))
	for k, v := range d.members {
		members[k] = slices.Clone(v)
	}
	return data{
		users:       maps.Clone(d.users),
		credentials: maps.Clone(d.credentials),
		groups:      maps.Clone(d.groups),
		members:     members,
		requests:    maps.Clone(d.requests),
		revoked:     maps.Clone(d.revoked),
		families:    maps.Clone(d.families),
		tokens:      maps.Clone(d.tokens),
	}
}

// WithinTx runs fn in a transaction. A nested call joins the outer one.
// Hooks registered with store.AfterCommit run after a successful commit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	hooks, err := s.run(ctx, fn)
	if err != nil {
		return err
	}
	hooks.Run(ctx)
	return nil
}

// lock takes the write lock for a repository mutation. A call joining the
// current transaction already holds txMu.
func (s *Store) lock(ctx context.Context) (unlock func()) {
	if owner, _ := ctx.Value(txKey{}).(*Store); owner == s {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

func (s *Store) run(ctx context.Context, fn func(ctx context.Context) error) (hooks *store.Hooks, err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	committed := false
	defer func() {
		if !committed {
			s.mu.Lock()
			s.data = snapshot
			s.mu.Unlock()
		}
	}()

	txCtx, hooks := store.WithHooks(context.WithValue(ctx, txKey{}, s))
	if err := fn(txCtx); err != nil {
		return nil, err
	}
	committed = true
	return hooks, nil
}
