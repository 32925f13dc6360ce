// ABOUTME: Derives the session id for a request from body fields and headers.

package session

// DefaultID is the session used when a request carries no identifier at all.
const DefaultID = "default"

// ResolveID picks the session id from the request's identifying fields.
// Priority, first non-empty wins: conversation_id, user, session_id, the
// X-Session-ID header, then the shared default session.
func ResolveID(conversationID, user, sessionID, header string) string {
	switch {
	case conversationID != "":
		return conversationID
	case user != "":
		return user
	case sessionID != "":
		return sessionID
	case header != "":
		return header
	default:
		return DefaultID
	}
}
