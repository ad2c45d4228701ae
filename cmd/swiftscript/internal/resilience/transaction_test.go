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
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func begin(t *testing.T, store Store, fields Field) *Transaction {
	t.Helper()
	tx, err := Begin(context.Background(), store, fields)
	require.NoError(t, err)
	require.Equal(t, PhaseCaptured, tx.Phase())
	return tx
}

func TestTransaction_CommitKeepsWrites(t *testing.T) {
	store := newMemStore()
	store.set(FieldManifest, "R0")
	tx := begin(t, store, FieldManifest)

	store.set(FieldManifest, "R1")
	require.NoError(t, tx.Commit())
	assert.Equal(t, PhaseCommitted, tx.Phase())
	assert.Nil(t, tx.Snapshot())

	got, _ := store.get(FieldManifest)
	assert.Equal(t, "R1", got)
}

func TestTransaction_AbortRestores(t *testing.T) {
	store := newMemStore()
	store.set(FieldManifest, "R0")
	store.set(FieldPackages, samplePackages)
	tx := begin(t, store, FieldManifest|FieldPackages)

	store.set(FieldManifest, "R1")
	store.set(FieldPackages, "[]\n")
	require.NoError(t, tx.Abort(context.Background()))
	assert.Equal(t, PhaseAborted, tx.Phase())

	got, _ := store.get(FieldManifest)
	assert.Equal(t, "R0", got)
	got, _ = store.get(FieldPackages)
	assert.Equal(t, samplePackages, got)
}

func TestTransaction_AbortTwiceIsNoop(t *testing.T) {
	store := newMemStore()
	store.set(FieldManifest, "R0")
	tx := begin(t, store, FieldManifest)

	require.NoError(t, tx.Abort(context.Background()))
	writes := store.writes

	store.set(FieldManifest, "written after abort")
	require.NoError(t, tx.Abort(context.Background()))
	assert.Equal(t, writes, store.writes, "second abort must not restore again")
}

func TestTransaction_AbortRetriesFailedRestore(t *testing.T) {
	store := newMemStore()
	store.set(FieldManifest, "R0")
	tx := begin(t, store, FieldManifest)
	store.set(FieldManifest, "R1")

	store.failOnce(FieldManifest, errors.New("disk full"))
	require.Error(t, tx.Abort(context.Background()))
	got, _ := store.get(FieldManifest)
	assert.Equal(t, "R1", got)

	require.NoError(t, tx.Abort(context.Background()))
	got, _ = store.get(FieldManifest)
	assert.Equal(t, "R0", got)
}

func TestTransaction_CommitThenAbort(t *testing.T) {
	store := newMemStore()
	store.set(FieldManifest, "R0")
	tx := begin(t, store, FieldManifest)
	store.set(FieldManifest, "R1")

	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Abort(context.Background()), ErrTransactionClosed)

	got, _ := store.get(FieldManifest)
	assert.Equal(t, "R1", got)
}

func TestTransaction_AbortThenCommit(t *testing.T) {
	store := newMemStore()
	store.set(FieldManifest, "R0")
	tx := begin(t, store, FieldManifest)

	require.NoError(t, tx.Abort(context.Background()))
	assert.ErrorIs(t, tx.Commit(), ErrTransactionClosed)
	assert.Equal(t, PhaseAborted, tx.Phase())
}

func TestTransaction_AbortWithCancelledContext(t *testing.T) {
	store := newMemStore()
	tx := begin(t, store, FieldPackages)
	store.set(FieldPackages, samplePackages)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, tx.Abort(ctx))
	_, ok := store.get(FieldPackages)
	assert.False(t, ok, "file created inside the transaction is removed")
}

func TestTransaction_ConcurrentFinishReachesOnePhase(t *testing.T) {
	for i := 0; i < 50; i++ {
		store := newMemStore()
		store.set(FieldManifest, "R0")
		tx := begin(t, store, FieldManifest)
		store.set(FieldManifest, "R1")

		var wg sync.WaitGroup
		var commitErr, abortErr error
		wg.Add(2)
		go func() { defer wg.Done(); commitErr = tx.Commit() }()
		go func() { defer wg.Done(); abortErr = tx.Abort(context.Background()) }()
		wg.Wait()

		got, _ := store.get(FieldManifest)
		switch tx.Phase() {
		case PhaseCommitted:
			assert.NoError(t, commitErr)
			assert.ErrorIs(t, abortErr, ErrTransactionClosed)
			assert.Equal(t, "R1", got)
		case PhaseAborted:
			assert.NoError(t, abortErr)
			assert.ErrorIs(t, commitErr, ErrTransactionClosed)
			assert.Equal(t, "R0", got)
		default:
			t.Fatalf("phase = %v", tx.Phase())
		}
	}
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "captured", PhaseCaptured.String())
	assert.Equal(t, "committed", PhaseCommitted.String())
	assert.Equal(t, "aborted", PhaseAborted.String())
	assert.Equal(t, "unknown", Phase(9).String())
}
