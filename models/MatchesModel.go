package models

// MatchRecord is the durable root record of a match. SecretKey is base64url
// encoded and never serialized to callers.
type MatchRecord struct {
	MatchPubKey string `dynamodbav:"matchPubKey" json:"matchPubKey" db:"matchPubKey"`
	SecretKey   string `dynamodbav:"secretKey" json:"-" db:"secretKey"`
}

// Match is the aggregate of a MatchRecord and its members
type Match struct {
	MatchPubKey string       `json:"matchPubKey"`
	SecretKey   string       `json:"-"`
	Users       []UserRecord `json:"users"`
}

// FindUser returns the member with the given identity
func (m Match) FindUser(userPubKey string) (UserRecord, bool) {
	for _, u := range m.Users {
		if u.UserPubKey == userPubKey {
			return u, true
		}
	}
	return UserRecord{}, false
}

// HasUser reports whether userPubKey is a current member
func (m Match) HasUser(userPubKey string) bool {
	_, ok := m.FindUser(userPubKey)
	return ok
}

// UpdateMatchArgs describes a membership change handed to the record store.
// Backends apply RemovedUsers as a diff against the stored membership.
type UpdateMatchArgs struct {
	MatchPubKey        string
	PreviousMatchState Match
	NewMatchState      Match
	RemovedUsers       []UserRecord
}

// DynamoDB table names
const (
	MatchesTable    = "SolanaMatches"
	MatchUsersTable = "SolanaMatchUsers"
)
