package chat

import "time"

// Session is the in-memory, per-tab conversation state keyed by a client token.
// Values handed out by the session store are snapshots.
type Session struct {
	ID         string    `json:"id"`
	Turns      []Turn    `json:"turns"`
	LastActive time.Time `json:"lastActive"`
}
