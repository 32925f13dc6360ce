// Package session tracks isolated conversation contexts keyed by
// caller-supplied ids.
//
// # Ownership model
//
// The Registry owns the id -> Session map. A Session bundles the per-session
// generation lock with the engine conversation handle; the dispatch layer
// borrows both for the duration of one operation. Deleting an id removes the
// map entry only - the Session object itself lives until its last holder
// lets go, so an in-flight generation is never invalidated by deletion.
//
// Sessions accumulate without bound until explicitly deleted. There is no
// eviction policy; long-running deployments with unbounded distinct ids
// should recycle them via DELETE /v1/sessions.
package session
