// Package invites generates invitation tokens and evaluates invitation
// expiry.
//
// Tokens are 32 random bytes, hex encoded. Only HashToken(token) is
// persisted; the plaintext is returned once to the inviter and embedded in
// the accept link:
//
//	<base>/invite/<token>?member=<membership id>
//
// An invitation expires InviteTTL (7 days) after it was sent. Expiry is
// recomputed from the invitation time on every check.
package invites
