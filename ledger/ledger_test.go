package ledger

import (
	"context"
	"errors"
	"testing"

	"solana_game_server/models"
	"solana_game_server/services"
	"solana_game_server/solana"
	"solana_game_server/utils"
)

func newKey(t *testing.T) string {
	t.Helper()
	kp, err := utils.NewStringKeyPair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	return kp.PublicKey
}

func newPlayer(t *testing.T) models.UserItem {
	return models.UserItem{
		UserPubKey:           newKey(t),
		UserTokenPubKey:      newKey(t),
		UserMatchTokenPubKey: newKey(t),
	}
}

func TestLeaveMovesEscrowAndChainsBlocks(t *testing.T) {
	l := New(solana.TokenProgramID, 6, nil)
	ctx := context.Background()
	match := newKey(t)
	player := models.NewUserRecord(match, newPlayer(t))
	if _, err := l.Mint(player.UserMatchTokenPubKey, 2_500_000); err != nil {
		t.Fatalf("mint: %v", err)
	}

	signer, err := l.FindProgramSigner(match, player.UserPubKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	signature, err := l.Leave(ctx, models.LeaveArgs{MatchPubKey: match, User: player, Signer: signer})
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if signature == "" {
		t.Fatalf("expected a signature")
	}

	balance, err := l.TokenBalance(ctx, player.UserTokenPubKey)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Amount != 2_500_000 || balance.UIAmount.String() != "2.5" {
		t.Fatalf("unexpected balance %+v", balance)
	}
	if len(l.Blocks()) != 3 {
		t.Fatalf("expected genesis, mint and leave blocks, got %d", len(l.Blocks()))
	}
	if err := l.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := New(solana.TokenProgramID, 0, nil)
	if _, err := l.Mint("acct", 10); err != nil {
		t.Fatalf("mint: %v", err)
	}
	l.blocks[1].Transfer.Amount = 1000
	if err := l.Verify(); err == nil {
		t.Fatalf("expected tampered block to fail verification")
	}
}

func TestSettlementRejectsWrongSigner(t *testing.T) {
	l := New(solana.TokenProgramID, 0, nil)
	match := newKey(t)
	player := models.NewUserRecord(match, newPlayer(t))
	l.Mint(player.UserMatchTokenPubKey, 5)

	_, err := l.Leave(context.Background(), models.LeaveArgs{
		MatchPubKey: match,
		User:        player,
		Signer:      models.ProgramSigner{Address: newKey(t), Bump: 255},
	})
	if !errors.Is(err, ErrSignerMismatch) {
		t.Fatalf("expected ErrSignerMismatch, got %v", err)
	}
}

func TestTokenBalanceUnknownAccount(t *testing.T) {
	l := New(solana.TokenProgramID, 0, nil)
	if _, err := l.TokenBalance(context.Background(), "nobody"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestMatchLifecycleAgainstLedger(t *testing.T) {
	ctx := context.Background()
	l := New(solana.TokenProgramID, 0, nil)
	server := &services.GameServer{Store: services.NewMemoryMatchStore(), Settlement: l}

	matchPubKey, err := server.CreateMatch(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	alice, bob, carol, dave := newPlayer(t), newPlayer(t), newPlayer(t), newPlayer(t)
	for _, p := range []models.UserItem{alice, bob, carol, dave} {
		l.Mint(p.UserMatchTokenPubKey, 100)
		server.AddSignedUserToMatch(ctx, matchPubKey, p)
	}
	l.Mint(alice.UserTokenPubKey, 100)

	if _, err := server.LeaveGame(ctx, matchPubKey, dave.UserPubKey); err != nil {
		t.Fatalf("leave: %v", err)
	}
	refund, _ := l.TokenBalance(ctx, dave.UserTokenPubKey)
	if refund.Amount != 100 {
		t.Fatalf("dave should be refunded 100, got %d", refund.Amount)
	}

	l.SetFault(func(kind, from string) error {
		if kind == models.SettlementDistributeReward && from == bob.UserMatchTokenPubKey {
			return errors.New("blockhash not found")
		}
		return nil
	})
	result, err := server.EndGame(ctx, matchPubKey, alice.UserPubKey)
	if err != nil {
		t.Fatalf("end game: %v", err)
	}
	if result.BalanceBefore != 100 || result.BalanceAfter != 200 || result.Delta != 100 {
		t.Fatalf("expected only carol's escrow to land: %+v", result)
	}
	escrow, _ := l.TokenBalance(ctx, bob.UserMatchTokenPubKey)
	if escrow.Amount != 100 {
		t.Fatalf("bob's escrow should be untouched, got %d", escrow.Amount)
	}
	if err := l.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
