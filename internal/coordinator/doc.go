// Package coordinator is the in-memory room presence and code synchronization core.
//
// # Overview
//
// Every participant holds one WebSocket to the coordinator. The coordinator keeps,
// per room, the set of connected participants (a registry.Registry) and the latest
// document text and language (a roomstate.Store), and relays edit, typing and
// cursor events between the members of a room.
//
//	 participant ──► ws read pump ──► Hub.inbound ──┐
//	 participant ──► ws read pump ──► Hub.joins   ──┼──► Hub.Run ──► Coordinator
//	 participant ──► ws read pump ──► Hub.leave   ──┘        │
//	                                                          ▼
//	 participant ◄── ws write pump ◄── Peer.Send ◄── relay / broadcast
//
// # Concurrency
//
// All coordinator state is owned by the goroutine running Hub.Run. Requests from
// connections arrive over channels and are applied one at a time, so the registry
// and store are never touched concurrently and need no locks. A connection's read
// pump submits its events sequentially, which keeps events from one connection in
// the order the transport delivered them. There is no ordering across connections:
// two near-simultaneous edits are reconciled by arrival order at the hub.
//
// Sends never block the hub. Peer.Send enqueues into a bounded buffer and reports
// failure when the buffer is full; such a peer is torn down as a slow consumer once
// the current event has been fully applied.
//
// # Reconciliation
//
// code-change overwrites the stored text unconditionally (last writer wins).
// code-sync replaces it only when the incoming text is longer than what is stored.
// The length rule is a catch-up heuristic, not a merge: two divergent edits of equal
// length never converge.
//
// # Connection lifecycle
//
//	Connecting ──join──► Joined(room) ──disconnecting──► Disconnecting ──disconnect──► Closed
//	     │                    │                                                     ▲
//	     └────────────────────┴──────────────────disconnect─────────────────────────┘
//
// Graceful leave and transport disconnect run the same teardown. Teardown is keyed
// on registry presence, so the second of a disconnecting/disconnect pair is a no-op
// and emits no second user-left.
//
// # Scaling
//
// State is process-local. Running several coordinators gives each its own,
// inconsistent copy of every room; the Redis mirror is a one-way observation feed
// and does not change that.
package coordinator
