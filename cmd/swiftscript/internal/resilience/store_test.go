// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"bytes"
	"context"
	"io/fs"
	"sync"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu       sync.Mutex
	files    map[Field][]byte
	failNext map[Field]error
	writes   int
}

func newMemStore() *memStore {
	return &memStore{files: make(map[Field][]byte), failNext: make(map[Field]error)}
}

func (m *memStore) Read(_ context.Context, f Field) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[f]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return bytes.Clone(data), nil
}

func (m *memStore) Write(_ context.Context, f Field, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext[f]; err != nil {
		delete(m.failNext, f)
		return err
	}
	m.writes++
	m.files[f] = bytes.Clone(data)
	return nil
}

func (m *memStore) Remove(_ context.Context, f Field) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext[f]; err != nil {
		delete(m.failNext, f)
		return err
	}
	delete(m.files, f)
	return nil
}

func (m *memStore) set(f Field, s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[f] = []byte(s)
}

func (m *memStore) get(f Field) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[f]
	return string(data), ok
}

func (m *memStore) failOnce(f Field, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[f] = err
}
