package models

// MatchEvent is the payload pushed to clients subscribed to a match room
type MatchEvent struct {
	Type        string      `json:"type"`
	MatchPubKey string      `json:"matchPubKey"`
	UserPubKey  string      `json:"userPubKey,omitempty"`
	Signature   string      `json:"signature,omitempty"`
	Result      interface{} `json:"result,omitempty"`
	CreatedAt   string      `json:"createdAt"`
}
