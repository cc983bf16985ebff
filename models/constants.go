package models

// ✅ Match events broadcast over socket.io
const (
	EventMatchCreated = "match_created"
	EventUserJoined   = "user_joined"
	EventUserLeft     = "user_left"
	EventMatchEnded   = "match_ended"
)

// ✅ Settlement instruction kinds
const (
	SettlementLeave            = "leave"
	SettlementDistributeReward = "distribute_reward"
)

// ✅ Operation names used in logs and metrics
const (
	OpCreateMatch = "create_match"
	OpAddUser     = "add_user"
	OpLeaveGame   = "leave_game"
	OpEndGame     = "end_game"
)
