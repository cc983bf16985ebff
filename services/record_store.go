package services

import (
	"context"
	"errors"

	"solana_game_server/models"
)

var (
	// ErrMatchNotFound is returned by a MatchStore when the MatchRecord is absent.
	ErrMatchNotFound = errors.New("match not found")
	// ErrUserNotInMatch is returned when an operation names a user who is not a member.
	ErrUserNotInMatch = errors.New("user is not a member of the match")
	// ErrWinnerNotMember is returned by EndGame when the winner is not a member.
	ErrWinnerNotMember = errors.New("winner is not a member of the match")
)

// MatchStore persists matches and their members. Implementations are supplied by the
// integrator (DynamoDB, Redis, SQL, memory). Every call is independent; the orchestrator
// only assumes per-call atomicity.
type MatchStore interface {
	// WriteMatchRecord persists a new match with no members.
	WriteMatchRecord(ctx context.Context, matchKeyPair models.KeyPair) error

	// WriteUserRecord adds a member. Writing the same (match, user) pair twice must
	// leave exactly one record.
	WriteUserRecord(ctx context.Context, user models.UserRecord) error

	// GetMatchRecord returns ErrMatchNotFound (possibly wrapped) when the match is absent.
	GetMatchRecord(ctx context.Context, matchPubKey string) (models.MatchRecord, error)

	// GetUserRecords returns the current members. A match with no members yields an
	// empty slice and a nil error; errors are reserved for backend faults.
	GetUserRecords(ctx context.Context, matchPubKey string) ([]models.UserRecord, error)

	// RemoveUserRecords applies a membership update, either by deleting
	// args.RemovedUsers or by overwriting with args.NewMatchState.
	RemoveUserRecords(ctx context.Context, args models.UpdateMatchArgs) error

	// RemoveMatch deletes the match and its membership.
	RemoveMatch(ctx context.Context, matchPubKey string) error
}
