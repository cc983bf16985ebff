package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"solana_game_server/logging"
	"solana_game_server/models"
	"solana_game_server/utils"

	"github.com/google/uuid"
)

// GameServer drives the match lifecycle across the record store and the settlement program.
//
// A match is nonexistent, then active while it has members, then gone. The two
// backends fail independently and nothing here is transactional across them: store
// mutations are never rolled back after a failed settlement, and one member's failed
// payout never blocks another's.
type GameServer struct {
	Store      MatchStore
	Settlement SettlementClient

	// NewKeyPair generates match identities. Defaults to utils.NewStringKeyPair.
	NewKeyPair func() (models.KeyPair, error)

	// Optional collaborators.
	Archive OutcomeArchive
	Events  EventPublisher
	Metrics *Metrics
	Logger  *slog.Logger
}

// CreateMatch generates a fresh match identity, persists an empty MatchRecord and
// returns the match public key.
func (s *GameServer) CreateMatch(ctx context.Context) (matchPubKey string, err error) {
	log, done := s.begin(models.OpCreateMatch, "")
	defer func() { done(err) }()

	keyPair, err := Catch("generateKeyPair", s.keyGenerator())
	if err != nil {
		log.Error("❌ Failed to generate match keypair", "error", err)
		return "", err
	}
	err = CatchErr("writeMatchRecord", func() error {
		return s.Store.WriteMatchRecord(ctx, keyPair)
	})
	if err != nil {
		log.Error("❌ Failed to write match record", "matchPubKey", keyPair.PublicKey, "error", err)
		return "", err
	}

	log.Info("✅ Match created", "matchPubKey", keyPair.PublicKey)
	s.publish(models.MatchEvent{Type: models.EventMatchCreated, MatchPubKey: keyPair.PublicKey})
	return keyPair.PublicKey, nil
}

// DoesMatchExist checks the record store. Any failure, including a backend fault,
// is logged and reported as false.
func (s *GameServer) DoesMatchExist(ctx context.Context, matchPubKey string) bool {
	_, err := Catch("getMatchRecord", func() (models.MatchRecord, error) {
		return s.Store.GetMatchRecord(ctx, matchPubKey)
	})
	if err != nil {
		s.logger().Warn("⚠️ Match existence check failed", "matchPubKey", matchPubKey, "error", err)
		return false
	}
	return true
}

// AddSignedUserToMatch admits user into an existing match. It is a logged no-op
// when the match does not exist or the write fails. Duplicate admission relies on
// the store's idempotence.
func (s *GameServer) AddSignedUserToMatch(ctx context.Context, matchPubKey string, user models.UserItem) {
	var err error
	log, done := s.begin(models.OpAddUser, matchPubKey)
	defer func() { done(err) }()

	if !s.DoesMatchExist(ctx, matchPubKey) {
		err = ErrMatchNotFound
		log.Warn("⚠️ Refusing to add user to unknown match", "userPubKey", user.UserPubKey)
		return
	}
	record := models.NewUserRecord(matchPubKey, user)
	err = CatchErr("writeUserRecord", func() error {
		return s.Store.WriteUserRecord(ctx, record)
	})
	if err != nil {
		log.Error("❌ Failed to write user record", "userPubKey", user.UserPubKey, "error", err)
		return
	}

	log.Info("✅ User added to match", "userPubKey", user.UserPubKey)
	s.publish(models.MatchEvent{Type: models.EventUserJoined, MatchPubKey: matchPubKey, UserPubKey: user.UserPubKey})
}

// GetMatch assembles the Match aggregate from the root record and its members.
func (s *GameServer) GetMatch(ctx context.Context, matchPubKey string) (models.Match, error) {
	record, err := Catch("getMatchRecord", func() (models.MatchRecord, error) {
		return s.Store.GetMatchRecord(ctx, matchPubKey)
	})
	if err != nil {
		return models.Match{}, err
	}
	users, err := Catch("getUserRecords", func() ([]models.UserRecord, error) {
		return s.Store.GetUserRecords(ctx, matchPubKey)
	})
	if err != nil {
		return models.Match{}, err
	}
	return models.Match{
		MatchPubKey: record.MatchPubKey,
		SecretKey:   record.SecretKey,
		Users:       users,
	}, nil
}

// LeaveGame removes userPubKey from the match and refunds their escrow.
//
// When the departing user is the last member the match record is deleted; if that
// delete fails the operation stops before settlement. Otherwise the remaining
// membership is persisted; a failure there is logged and the refund still runs.
// The returned value is the refund transaction signature.
func (s *GameServer) LeaveGame(ctx context.Context, matchPubKey, userPubKey string) (signature string, err error) {
	log, done := s.begin(models.OpLeaveGame, matchPubKey)
	defer func() { done(err) }()
	log = log.With("userPubKey", userPubKey)

	match, err := s.GetMatch(ctx, matchPubKey)
	if err != nil {
		log.Error("❌ Failed to load match", "error", err)
		return "", err
	}
	leaving, ok := match.FindUser(userPubKey)
	if !ok {
		log.Warn("⚠️ User is not in match, nothing to do")
		return "", ErrUserNotInMatch
	}

	remaining := make([]models.UserRecord, 0, len(match.Users))
	for _, u := range match.Users {
		if u.UserPubKey != userPubKey {
			remaining = append(remaining, u)
		}
	}
	removed := removedUsers(match.Users, remaining)

	if len(remaining) == 0 {
		err = CatchErr("removeMatch", func() error {
			return s.Store.RemoveMatch(ctx, matchPubKey)
		})
		if err != nil {
			log.Error("❌ Failed to remove empty match", "error", err)
			return "", err
		}
		log.Info("🗑️ Last member left, match removed")
	} else {
		next := match
		next.Users = remaining
		updateErr := CatchErr("removeUserRecords", func() error {
			return s.Store.RemoveUserRecords(ctx, models.UpdateMatchArgs{
				MatchPubKey:        matchPubKey,
				PreviousMatchState: match,
				NewMatchState:      next,
				RemovedUsers:       removed,
			})
		})
		if updateErr != nil {
			log.Error("❌ Failed to persist membership update", "error", updateErr)
		}
	}

	signature, err = s.refund(ctx, matchPubKey, leaving)
	s.publish(models.MatchEvent{Type: models.EventUserLeft, MatchPubKey: matchPubKey, UserPubKey: userPubKey, Signature: signature})
	if err != nil {
		log.Error("❌ Leave settlement failed", "error", err)
		return "", err
	}
	log.Info("✅ Leave settled", "signature", signature)
	return signature, nil
}

func (s *GameServer) refund(ctx context.Context, matchPubKey string, user models.UserRecord) (signature string, err error) {
	defer func() { s.Metrics.observeSettlement(models.SettlementLeave, err) }()
	signer, err := Catch("findProgramSigner", func() (models.ProgramSigner, error) {
		return s.Settlement.FindProgramSigner(matchPubKey, user.UserPubKey)
	})
	if err != nil {
		return "", err
	}
	return Catch("leave", func() (string, error) {
		return s.Settlement.Leave(ctx, models.LeaveArgs{
			MatchPubKey: matchPubKey,
			User:        user,
			Signer:      signer,
		})
	})
}

// EndGame pays every other member's escrow to the winner and returns the change in
// the winner's token balance.
//
// Transfers run concurrently and independently; a failed transfer is recorded in
// the result and does not affect the others. The closing balance is read only after
// every transfer attempt has finished. An unreadable balance counts as zero. The
// record store is not modified.
func (s *GameServer) EndGame(ctx context.Context, matchPubKey, winnerPubKey string) (result *models.EndGameResult, err error) {
	log, done := s.begin(models.OpEndGame, matchPubKey)
	defer func() { done(err) }()
	log = log.With("winnerPubKey", winnerPubKey)

	match, err := s.GetMatch(ctx, matchPubKey)
	if err != nil {
		log.Error("❌ Failed to load match", "error", err)
		return nil, err
	}
	winner, ok := match.FindUser(winnerPubKey)
	if !ok {
		log.Warn("⚠️ Winner is not a member, refusing to settle")
		return nil, ErrWinnerNotMember
	}

	before := s.balanceOrZero(ctx, winner.UserTokenPubKey)

	var losers []models.UserRecord
	for _, u := range match.Users {
		if u.UserPubKey != winner.UserPubKey {
			losers = append(losers, u)
		}
	}
	payouts := make([]models.PayoutOutcome, len(losers))
	var wg sync.WaitGroup
	for i, loser := range losers {
		wg.Add(1)
		go func(i int, loser models.UserRecord) {
			defer wg.Done()
			payouts[i] = s.payout(ctx, log, matchPubKey, winner, loser)
		}(i, loser)
	}
	wg.Wait()

	after := s.balanceOrZero(ctx, winner.UserTokenPubKey)

	result = &models.EndGameResult{
		MatchPubKey:   matchPubKey,
		WinnerPubKey:  winnerPubKey,
		BalanceBefore: before,
		BalanceAfter:  after,
		Delta:         models.BalanceDelta(before, after),
		Payouts:       payouts,
	}
	log.Info("✅ Match settled", "delta", result.Delta, "payouts", len(payouts))

	if s.Archive != nil {
		if archiveErr := CatchErr("putOutcome", func() error { return s.Archive.PutOutcome(ctx, *result) }); archiveErr != nil {
			log.Warn("⚠️ Failed to archive match outcome", "error", archiveErr)
		}
	}
	s.publish(models.MatchEvent{Type: models.EventMatchEnded, MatchPubKey: matchPubKey, UserPubKey: winnerPubKey, Result: result})
	return result, nil
}

func (s *GameServer) payout(ctx context.Context, log *slog.Logger, matchPubKey string, winner, from models.UserRecord) models.PayoutOutcome {
	outcome := models.PayoutOutcome{UserPubKey: from.UserPubKey}
	signature, err := func() (string, error) {
		signer, err := Catch("findProgramSigner", func() (models.ProgramSigner, error) {
			return s.Settlement.FindProgramSigner(matchPubKey, from.UserPubKey)
		})
		if err != nil {
			return "", err
		}
		return Catch("distributeReward", func() (string, error) {
			return s.Settlement.DistributeReward(ctx, models.RewardArgs{
				MatchPubKey:       matchPubKey,
				From:              from,
				WinnerPubKey:      winner.UserPubKey,
				WinnerTokenPubKey: winner.UserTokenPubKey,
				Signer:            signer,
			})
		})
	}()
	s.Metrics.observeSettlement(models.SettlementDistributeReward, err)
	if err != nil {
		log.Error("❌ Reward transfer failed", "fromUserPubKey", from.UserPubKey, "error", err)
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Signature = signature
	return outcome
}

func (s *GameServer) balanceOrZero(ctx context.Context, tokenAccount string) uint64 {
	balance, err := Catch("tokenBalance", func() (models.TokenBalance, error) {
		return s.Settlement.TokenBalance(ctx, tokenAccount)
	})
	if err != nil {
		s.logger().Warn("⚠️ Could not read token balance, using zero", "tokenAccount", tokenAccount, "error", err)
		return 0
	}
	return balance.Amount
}

// removedUsers returns the members of prev whose identity is absent from next.
func removedUsers(prev, next []models.UserRecord) []models.UserRecord {
	keep := make(map[string]struct{}, len(next))
	for _, u := range next {
		keep[u.UserPubKey] = struct{}{}
	}
	var removed []models.UserRecord
	for _, u := range prev {
		if _, ok := keep[u.UserPubKey]; !ok {
			removed = append(removed, u)
		}
	}
	return removed
}

// begin tags a logger with an operation id and returns a completion callback that
// records metrics.
func (s *GameServer) begin(op, matchPubKey string) (*slog.Logger, func(error)) {
	started := time.Now()
	log := s.logger().With("op", op, "op_id", uuid.NewString())
	if matchPubKey != "" {
		log = log.With("matchPubKey", matchPubKey)
	}
	return log, func(err error) {
		s.Metrics.observeOperation(op, started, err)
	}
}

func (s *GameServer) publish(event models.MatchEvent) {
	if s.Events == nil {
		return
	}
	event.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	s.Events.Publish(event)
}

func (s *GameServer) keyGenerator() func() (models.KeyPair, error) {
	if s.NewKeyPair != nil {
		return s.NewKeyPair
	}
	return utils.NewStringKeyPair
}

func (s *GameServer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.Discard()
}

// IsNotFound reports whether err means the match or member was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMatchNotFound)
}

// IsMembershipViolation reports whether err names a user who is not in the match.
func IsMembershipViolation(err error) bool {
	return errors.Is(err, ErrUserNotInMatch) || errors.Is(err, ErrWinnerNotMember)
}
