// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package resilience makes multi-file mutations of the installation appear
atomic with respect to interruption.

# Snapshot and Transaction

A Snapshot is an in-memory copy of a chosen subset of persistent state
(config.yaml, runner/Package.swift, packages.json) taken before a
mutation. Restore writes exactly those files back, removing any that did
not exist at capture time. It is idempotent and ignores cancellation of its
context.

Transaction wraps a Snapshot in a two-phase protocol:

	Captured ──Commit──▶ Committed   (snapshot discarded)
	    │
	    └─────Abort────▶ Aborted     (snapshot restored)

Exactly one terminal phase is reached. Repeating the same terminal call is
a no-op; calling the opposite one returns ErrTransactionClosed.

	tx, err := resilience.Begin(ctx, env, resilience.FieldManifest|resilience.FieldPackages)
	if err != nil {
	    return err
	}
	cancel.Register(cancel.Interrupt, "restore", func() error { return tx.Abort(ctx) })
	// ... writes ...
	return tx.Commit()

The guarantee is "an aborted operation leaves every touched file at its
pre-operation value", observed by the next lock holder. It is not a
guarantee that the filesystem never shows an intermediate state.

# Saga

Saga runs an ordered list of steps and compensates completed steps in
reverse order when a later one fails or the context is cancelled. The init
command uses it to remove a partially created installation.

# Thread Safety

Transaction and Saga are safe for concurrent use; a Transaction is usually
finished from two places (the workflow and an interrupt handler).
*/
package resilience
