package services

import (
	"context"

	"solana_game_server/models"
)

// SettlementClient moves escrowed tokens on chain. Calls are not retried by the
// orchestrator; a failed settlement is logged and skipped.
type SettlementClient interface {
	// FindProgramSigner derives the program-controlled signer for (match, user).
	// The derivation is deterministic and needs no network access.
	FindProgramSigner(matchPubKey, userPubKey string) (models.ProgramSigner, error)

	// Leave refunds a departing user's escrow to their personal token account and
	// returns the transaction signature.
	Leave(ctx context.Context, args models.LeaveArgs) (string, error)

	// DistributeReward transfers one member's escrow to the winner's token account
	// and returns the transaction signature.
	DistributeReward(ctx context.Context, args models.RewardArgs) (string, error)

	// TokenBalance reads the balance of a token account.
	TokenBalance(ctx context.Context, tokenAccount string) (models.TokenBalance, error)
}
