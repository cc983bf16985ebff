package services

import (
	"context"

	"solana_game_server/models"
)

// EventPublisher pushes match lifecycle events to subscribers. Publishing is fire-and-forget.
type EventPublisher interface {
	Publish(event models.MatchEvent)
}

// OutcomeArchive stores settled match results outside the record store.
type OutcomeArchive interface {
	PutOutcome(ctx context.Context, result models.EndGameResult) error
}
