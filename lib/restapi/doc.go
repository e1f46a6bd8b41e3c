// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package restapi wraps the service's REST surface for one account.
//
// Every call carries the account credential. Rate-limited responses
// are retried transparently after the server-supplied delay; the
// backoff suspends only the issuing request, never the caller's other
// work. All other response statuses are returned to the caller
// unmodified as structured errors — retry policy for those belongs to
// the caller.
package restapi
