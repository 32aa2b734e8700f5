// Package retry provides exponential backoff for transient provider faults.
//
// [WithExponentialBackoff] retries an operation until it succeeds, the
// attempt budget runs out, or the context ends. Errors wrapped with [Fatal]
// stop the loop immediately; every domain error kind is wrapped this way by
// the providers so that it is reported, never retried.
package retry
