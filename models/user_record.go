package models

// UserItem identifies a participant, their personal token account and the
// match-scoped escrow token account.
type UserItem struct {
	UserPubKey           string `dynamodbav:"userPubKey" json:"userPubKey" db:"userPubKey"`                               // Player wallet
	UserTokenPubKey      string `dynamodbav:"userTokenPubKey" json:"userTokenPubKey" db:"userTokenPubKey"`                // Personal token account
	UserMatchTokenPubKey string `dynamodbav:"userMatchTokenPubKey" json:"userMatchTokenPubKey" db:"userMatchTokenPubKey"` // Escrowed, match-scoped token account
}

// UserRecord is a UserItem bound to a match
type UserRecord struct {
	MatchPubKey          string `dynamodbav:"matchPubKey" json:"matchPubKey" db:"matchPubKey"`
	UserPubKey           string `dynamodbav:"userPubKey" json:"userPubKey" db:"userPubKey"`
	UserTokenPubKey      string `dynamodbav:"userTokenPubKey" json:"userTokenPubKey" db:"userTokenPubKey"`
	UserMatchTokenPubKey string `dynamodbav:"userMatchTokenPubKey" json:"userMatchTokenPubKey" db:"userMatchTokenPubKey"`
}

// NewUserRecord binds item to matchPubKey
func NewUserRecord(matchPubKey string, item UserItem) UserRecord {
	return UserRecord{
		MatchPubKey:          matchPubKey,
		UserPubKey:           item.UserPubKey,
		UserTokenPubKey:      item.UserTokenPubKey,
		UserMatchTokenPubKey: item.UserMatchTokenPubKey,
	}
}

