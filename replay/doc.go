// Package replay numbers transport messages and rejects duplicates.
//
// A Window tracks the last counter sent and a bitmap of the W most recent
// counters received (W defaults to 64). For an incoming counter s against
// the high-water mark hi:
//
//   - s == 0 is rejected with ErrInvalidSequence
//   - s > hi advances the window and is accepted
//   - s <= hi is rejected with ErrTooOld when hi-s >= W, with ErrReplay when
//     already seen, and accepted otherwise
//
// A Guard binds a Window to an established session. Each frame carries its
// counter in the clear and uses it as the AEAD nonce, so frames reordered in
// transit still decrypt as long as they stay inside the window.
//
// Window state, but never key material, can be serialized and persisted
// through a crypto.KeyStorage to survive an app suspend while the session
// itself stays alive.
package replay
