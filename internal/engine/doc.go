// Package engine implements the optimistic mutation coordinator and the
// background reconciliation flow for one entity family.
//
// The engine mediates between three parties: the observable state container
// (what the UI reads), the partitioned cache store (what survives restarts),
// and the remote authoritative store (what costs a round trip). The ordering
// contract is fixed: apply local state, write cache, commit remote - in that
// sequence, never parallelized, so that local and cached state is never
// behind what a concurrent reader could already have observed, and the
// remote attempt always comes last.
//
// Mutation lifecycle:
//
//	Requested -> LocalApplied -> RemoteCommitted -> Settled
//	                   \-> Failed (terminal, no rollback)
//
// A create is assigned a "local-" prefixed id and is settled not by patching
// the id in place, but by the same background reconciliation used after a
// cache-hit load: once the authoritative list is re-fetched, the temporary
// record reconciles away. One mechanism covers both "data changed" and "id
// changed".
//
// CONCURRENCY MODEL:
//
// Mutations for one family are expected to arrive sequentially from the UI
// layer; an internal mutex orders them against background reconciliation
// applies. Overlapping updates to the same record are rejected by an
// optimistic version check (CONFLICT) rather than silently last-write-wins.
//
// Background reconciliations are fire-and-forget goroutines guarded by a
// session epoch: after ResetSession (user change, explicit refresh), results
// from an earlier epoch are discarded so stale data can never leak across
// sessions.
//
// ERROR POLICY:
//
// Cache failures never surface (the cache layer absorbs them). Background
// reconcile failures are logged and state stays last-known-good. Remote
// mutation failures surface as *MutationError and the optimistic local state
// is deliberately not reverted; the caller owns retry.
package engine
