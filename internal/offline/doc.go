// Package offline is the offline-first data façade.
//
// Every entity kind goes through the same two algorithms:
//
//	read:  offline with a non-empty cache   -> cache
//	       online, budget tight, cache warm -> cache
//	       otherwise                        -> remote; success replaces the
//	                                           cache, failure serves the cache
//	write: online -> remote; success mirrors the confirmed entity
//	                 into the cache; a rejection is returned to the caller
//	       offline or unreachable -> cache as-is and enqueue for replay
//
// Reads never fail because the remote or the local store is unavailable.
// Every successful remote call is reported to the usage governor once.
package offline
