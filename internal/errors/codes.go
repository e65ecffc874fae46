// Package errors provides the structured error taxonomy the retrieval core
// uses to classify failures (spec kinds: NotFound, AlreadyExists,
// DimensionMismatch, Transient, Corrupt, Cancelled, Fatal).
//
// Components convert library-specific errors (bleve, hnsw, HTTP, os) into a
// *RagError carrying one of these kinds at the boundary; callers downstream
// switch on Kind, never on message text.
package errors

// Kind classifies an error the way the retrieval core reasons about it:
// whether it's safe to hand back to a caller as-is, whether it's worth
// retrying, and whether it should mark a project as needing a rebuild.
type Kind string

const (
	// KindNotFound: no such project / chunk / symbol. Non-fatal.
	KindNotFound Kind = "NotFound"

	// KindAlreadyExists: project.add with a conflicting name. Non-fatal.
	KindAlreadyExists Kind = "AlreadyExists"

	// KindDimensionMismatch: embedder returned a vector of the wrong
	// dimension. Fatal for the in-flight call; the embedder is reset and
	// the caller may retry once.
	KindDimensionMismatch Kind = "DimensionMismatch"

	// KindTransient: network, 5xx, or timeout talking to the embedder or
	// LLM. Retried per-component policy; escalates to Degraded/Unavailable
	// once retries are exhausted.
	KindTransient Kind = "Transient"

	// KindCorrupt: an index or state file failed schema validation. The
	// project is marked needs-rebuild; reads fail until rebuilt, writes
	// trigger an automatic rebuild.
	KindCorrupt Kind = "Corrupt"

	// KindCancelled: caller cancelled the request. Propagated immediately;
	// partial mutations are not rolled back.
	KindCancelled Kind = "Cancelled"

	// KindFatal: invariant violation (e.g. non-contiguous chunk ordinals
	// after an upsert). Logged with context; the server keeps serving
	// other projects.
	KindFatal Kind = "Fatal"
)

// Retryable reports whether errors of this kind are, by default, worth
// retrying without escalating to the caller.
func (k Kind) Retryable() bool {
	return k == KindTransient
}

// NeedsRebuild reports whether a Kind should mark the owning project
// needs-rebuild rather than simply failing the in-flight call.
func (k Kind) NeedsRebuild() bool {
	return k == KindCorrupt
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}
