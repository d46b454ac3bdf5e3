package resolver

import "fmt"

// ResolveError wraps a failure to resolve a marked entity: a missing
// entity, a non-numeric state where numeric was required, or a missing
// forecast attribute (spec.md §4.3, §7).
type ResolveError struct {
	EntityID string
	Msg      string
	Err      error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %s: %s: %v", e.EntityID, e.Msg, e.Err)
	}
	return fmt.Sprintf("resolve %s: %s", e.EntityID, e.Msg)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// TransientProviderError signals a retryable provider failure
// (network error, timeout). Hydrate retries with bounded backoff
// before giving up; an exhausted retry surfaces as a ResolveError.
type TransientProviderError struct {
	EntityID string
	Err      error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("transient provider error for %s: %v", e.EntityID, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }
