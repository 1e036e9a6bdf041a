// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconciler

import "context"

// AIResult is one chunk's {summary, embedding} pair, as produced by the
// summarization/embedding endpoints. A zero-length Embedding means the
// call failed for this item and the chunk must be dropped rather than
// cached or upserted.
type AIResult struct {
	Summary   string
	Embedding []float32
}

// AIClient is the pair of external AI endpoints (summarize + embed) the
// reconciler calls during phase-2. Implementations wrap their own network
// client; the reconciler only requires that Process respects ctx
// cancellation so that the caller's per-call timeout is honored.
type AIClient interface {
	// Process returns one AIResult per input chunk code, in order. A
	// length mismatch between inputs and outputs is treated by the
	// caller as an AI mismatch.
	Process(ctx context.Context, codes []string) ([]AIResult, error)
}

// ZeroVector reports whether embedding has no non-zero component, the
// signal that an AI call failed for that item.
func ZeroVector(embedding []float32) bool {
	for _, v := range embedding {
		if v != 0 {
			return false
		}
	}
	return true
}
