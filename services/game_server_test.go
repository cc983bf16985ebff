package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"solana_game_server/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

// fakeSettlement moves balances between in-memory token accounts.
type fakeSettlement struct {
	mu        sync.Mutex
	balances  map[string]uint64
	failFrom  map[string]bool
	panicFrom map[string]bool
	failRead  bool

	leaves  int
	rewards int
	reads   int
}

func newFakeSettlement() *fakeSettlement {
	return &fakeSettlement{
		balances:  make(map[string]uint64),
		failFrom:  make(map[string]bool),
		panicFrom: make(map[string]bool),
	}
}

func (f *fakeSettlement) FindProgramSigner(matchPubKey, userPubKey string) (models.ProgramSigner, error) {
	return models.ProgramSigner{Address: "signer-" + matchPubKey + "-" + userPubKey, Bump: 254}, nil
}

func (f *fakeSettlement) Leave(_ context.Context, args models.LeaveArgs) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	if f.failFrom[args.User.UserPubKey] {
		return "", errors.New("leave rejected")
	}
	f.move(args.User.UserMatchTokenPubKey, args.User.UserTokenPubKey)
	return "leave-" + args.User.UserPubKey, nil
}

func (f *fakeSettlement) DistributeReward(_ context.Context, args models.RewardArgs) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewards++
	if f.panicFrom[args.From.UserPubKey] {
		panic("rpc connection reset")
	}
	if f.failFrom[args.From.UserPubKey] {
		return "", errors.New("transfer rejected")
	}
	f.move(args.From.UserMatchTokenPubKey, args.WinnerTokenPubKey)
	return "reward-" + args.From.UserPubKey, nil
}

func (f *fakeSettlement) TokenBalance(_ context.Context, tokenAccount string) (models.TokenBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failRead {
		return models.TokenBalance{}, errors.New("account not found")
	}
	amount := f.balances[tokenAccount]
	return models.TokenBalance{Amount: amount, UIAmount: decimal.NewFromInt(int64(amount))}, nil
}

func (f *fakeSettlement) move(from, to string) {
	f.balances[to] += f.balances[from]
	f.balances[from] = 0
}

func (f *fakeSettlement) settlementCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaves + f.rewards
}

// countingStore wraps a MatchStore, counts mutations and can fail selected calls.
type countingStore struct {
	MatchStore
	mutations       int
	failGetMatch    bool
	failRemoveUsers bool
	failRemoveMatch bool
}

func (s *countingStore) WriteMatchRecord(ctx context.Context, kp models.KeyPair) error {
	s.mutations++
	return s.MatchStore.WriteMatchRecord(ctx, kp)
}

func (s *countingStore) WriteUserRecord(ctx context.Context, user models.UserRecord) error {
	s.mutations++
	return s.MatchStore.WriteUserRecord(ctx, user)
}

func (s *countingStore) GetMatchRecord(ctx context.Context, matchPubKey string) (models.MatchRecord, error) {
	if s.failGetMatch {
		return models.MatchRecord{}, errors.New("connection refused")
	}
	return s.MatchStore.GetMatchRecord(ctx, matchPubKey)
}

func (s *countingStore) RemoveUserRecords(ctx context.Context, args models.UpdateMatchArgs) error {
	s.mutations++
	if s.failRemoveUsers {
		return errors.New("conditional check failed")
	}
	return s.MatchStore.RemoveUserRecords(ctx, args)
}

func (s *countingStore) RemoveMatch(ctx context.Context, matchPubKey string) error {
	s.mutations++
	if s.failRemoveMatch {
		return errors.New("throttled")
	}
	return s.MatchStore.RemoveMatch(ctx, matchPubKey)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []models.MatchEvent
}

func (r *recordingEvents) Publish(event models.MatchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingArchive struct {
	results []models.EndGameResult
	err     error
}

func (r *recordingArchive) PutOutcome(_ context.Context, result models.EndGameResult) error {
	r.results = append(r.results, result)
	return r.err
}

type fixture struct {
	server     *GameServer
	store      *countingStore
	settlement *fakeSettlement
	events     *recordingEvents
	archive    *recordingArchive
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &countingStore{MatchStore: NewMemoryMatchStore()}
	settlement := newFakeSettlement()
	events := &recordingEvents{}
	archive := &recordingArchive{}
	return &fixture{
		server: &GameServer{
			Store:      store,
			Settlement: settlement,
			Events:     events,
			Archive:    archive,
			Metrics:    NewMetrics(prometheus.NewRegistry()),
		},
		store:      store,
		settlement: settlement,
		events:     events,
		archive:    archive,
	}
}

// seedMatch creates a match and admits the named players, each with the given escrow.
func (f *fixture) seedMatch(t *testing.T, escrow uint64, players ...string) string {
	t.Helper()
	ctx := context.Background()
	matchPubKey, err := f.server.CreateMatch(ctx)
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	for _, p := range players {
		item := player(p)
		f.settlement.balances[item.UserMatchTokenPubKey] = escrow
		f.server.AddSignedUserToMatch(ctx, matchPubKey, item)
	}
	return matchPubKey
}

func player(name string) models.UserItem {
	return models.UserItem{
		UserPubKey:           name,
		UserTokenPubKey:      name + "-token",
		UserMatchTokenPubKey: name + "-escrow",
	}
}

func TestCreateMatchReturnsDistinctKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.server.CreateMatch(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := f.server.CreateMatch(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct match keys, both were %s", a)
	}
	for _, key := range []string{a, b} {
		match, err := f.server.GetMatch(ctx, key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if len(match.Users) != 0 {
			t.Fatalf("new match should have no members, got %d", len(match.Users))
		}
	}
}

func TestCreateMatchKeyGenerationPanic(t *testing.T) {
	f := newFixture(t)
	f.server.NewKeyPair = func() (models.KeyPair, error) { panic("entropy source closed") }
	if _, err := f.server.CreateMatch(context.Background()); err == nil || err.Error() != "entropy source closed" {
		t.Fatalf("expected recovered panic, got %v", err)
	}
	if f.store.mutations != 0 {
		t.Fatalf("expected no store writes, got %d", f.store.mutations)
	}
}

func TestAddSignedUserToMatchIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchPubKey := f.seedMatch(t, 10, "alice")
	f.server.AddSignedUserToMatch(ctx, matchPubKey, player("alice"))

	match, err := f.server.GetMatch(ctx, matchPubKey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(match.Users) != 1 {
		t.Fatalf("expected alice exactly once, got %d members", len(match.Users))
	}
}

func TestAddSignedUserToUnknownMatchIsNoop(t *testing.T) {
	f := newFixture(t)
	f.server.AddSignedUserToMatch(context.Background(), "does-not-exist", player("alice"))
	if f.store.mutations != 0 {
		t.Fatalf("expected no store writes, got %d", f.store.mutations)
	}
	if f.server.DoesMatchExist(context.Background(), "does-not-exist") {
		t.Fatalf("match should not exist")
	}
	got := testutil.ToFloat64(f.server.Metrics.operations.WithLabelValues(models.OpAddUser, "failure"))
	if got != 1 {
		t.Fatalf("expected one failed add_user, got %v", got)
	}
}

func TestDoesMatchExistDowngradesFaults(t *testing.T) {
	f := newFixture(t)
	matchPubKey := f.seedMatch(t, 0)
	f.store.failGetMatch = true
	if f.server.DoesMatchExist(context.Background(), matchPubKey) {
		t.Fatalf("a faulting store should report false")
	}
}

func TestLeaveGameLastMemberRemovesMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchPubKey := f.seedMatch(t, 25, "alice")

	signature, err := f.server.LeaveGame(ctx, matchPubKey, "alice")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if signature != "leave-alice" {
		t.Fatalf("unexpected signature %q", signature)
	}
	if f.server.DoesMatchExist(ctx, matchPubKey) {
		t.Fatalf("match should be gone after last member left")
	}
	if got := f.settlement.balances["alice-token"]; got != 25 {
		t.Fatalf("expected refund of 25, got %d", got)
	}
}

func TestLeaveGameKeepsMatchWithRemainingMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchPubKey := f.seedMatch(t, 10, "alice", "bob", "carol")

	if _, err := f.server.LeaveGame(ctx, matchPubKey, "bob"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	match, err := f.server.GetMatch(ctx, matchPubKey)
	if err != nil {
		t.Fatalf("match should still exist: %v", err)
	}
	if len(match.Users) != 2 || match.HasUser("bob") {
		t.Fatalf("expected alice and carol to remain, got %+v", match.Users)
	}
	want := []string{models.EventMatchCreated, models.EventUserJoined, models.EventUserJoined, models.EventUserJoined, models.EventUserLeft}
	if got := f.events.types(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestLeaveGameUnknownUserIsNoop(t *testing.T) {
	f := newFixture(t)
	matchPubKey := f.seedMatch(t, 10, "alice")
	before := f.store.mutations

	_, err := f.server.LeaveGame(context.Background(), matchPubKey, "mallory")
	if !errors.Is(err, ErrUserNotInMatch) {
		t.Fatalf("expected ErrUserNotInMatch, got %v", err)
	}
	if f.store.mutations != before {
		t.Fatalf("expected no store mutations, got %d", f.store.mutations-before)
	}
	if n := f.settlement.settlementCalls(); n != 0 {
		t.Fatalf("expected no settlement calls, got %d", n)
	}
}

func TestLeaveGameRefundsWhenMembershipUpdateFails(t *testing.T) {
	f := newFixture(t)
	matchPubKey := f.seedMatch(t, 10, "alice", "bob")
	f.store.failRemoveUsers = true

	if _, err := f.server.LeaveGame(context.Background(), matchPubKey, "bob"); err != nil {
		t.Fatalf("refund should still run: %v", err)
	}
	if got := f.settlement.balances["bob-token"]; got != 10 {
		t.Fatalf("expected refund of 10, got %d", got)
	}
}

func TestLeaveGameStopsWhenMatchDeletionFails(t *testing.T) {
	f := newFixture(t)
	matchPubKey := f.seedMatch(t, 10, "alice")
	f.store.failRemoveMatch = true

	if _, err := f.server.LeaveGame(context.Background(), matchPubKey, "alice"); err == nil {
		t.Fatalf("expected deletion failure")
	}
	if n := f.settlement.settlementCalls(); n != 0 {
		t.Fatalf("expected no refund, got %d settlement calls", n)
	}
}

func TestEndGameReportsWinnerBalanceDelta(t *testing.T) {
	f := newFixture(t)
	matchPubKey := f.seedMatch(t, 50, "alice", "bob")
	f.settlement.balances["alice-token"] = 100

	result, err := f.server.EndGame(context.Background(), matchPubKey, "alice")
	if err != nil {
		t.Fatalf("end game: %v", err)
	}
	if result.BalanceBefore != 100 || result.BalanceAfter != 150 || result.Delta != 50 {
		t.Fatalf("unexpected balances: %+v", result)
	}
	if len(result.Payouts) != 1 || result.Payouts[0].Signature != "reward-bob" {
		t.Fatalf("unexpected payouts: %+v", result.Payouts)
	}
	if len(f.archive.results) != 1 || f.archive.results[0].Delta != 50 {
		t.Fatalf("expected archived outcome, got %+v", f.archive.results)
	}
	if f.settlement.balances["alice-escrow"] != 50 {
		t.Fatalf("winner's own escrow must not move, got %d", f.settlement.balances["alice-escrow"])
	}
}

func TestEndGameDeltaCountsLandedTransfers(t *testing.T) {
	cases := []struct {
		name      string
		fail      []string
		wantDelta int64
	}{
		{name: "all land", wantDelta: 100},
		{name: "one faults", fail: []string{"l1"}, wantDelta: 50},
		{name: "both fault", fail: []string{"l1", "l2"}, wantDelta: 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			matchPubKey := f.seedMatch(t, 50, "w", "l1", "l2")
			f.settlement.balances["w-token"] = 100
			for _, name := range c.fail {
				f.settlement.failFrom[name] = true
			}

			result, err := f.server.EndGame(context.Background(), matchPubKey, "w")
			if err != nil {
				t.Fatalf("end game: %v", err)
			}
			if result.BalanceBefore != 100 || result.Delta != c.wantDelta {
				t.Fatalf("expected before 100 delta %d, got %+v", c.wantDelta, result)
			}
			if uint64(int64(result.BalanceBefore)+result.Delta) != result.BalanceAfter {
				t.Fatalf("delta inconsistent with balances: %+v", result)
			}
		})
	}
}

func TestEndGameIsolatesFailedTransfers(t *testing.T) {
	f := newFixture(t)
	matchPubKey := f.seedMatch(t, 30, "alice", "bob", "carol")
	f.settlement.failFrom["bob"] = true

	result, err := f.server.EndGame(context.Background(), matchPubKey, "alice")
	if err != nil {
		t.Fatalf("end game: %v", err)
	}
	if f.settlement.rewards != 2 {
		t.Fatalf("expected both transfers attempted, got %d", f.settlement.rewards)
	}
	if result.Delta != 30 {
		t.Fatalf("expected only carol's escrow to land, delta %d", result.Delta)
	}
	outcomes := map[string]models.PayoutOutcome{}
	for _, p := range result.Payouts {
		outcomes[p.UserPubKey] = p
	}
	if outcomes["bob"].Succeeded() {
		t.Fatalf("bob's transfer should have failed")
	}
	if !outcomes["carol"].Succeeded() {
		t.Fatalf("carol's transfer should have landed: %s", outcomes["carol"].Error)
	}
	got := testutil.ToFloat64(f.server.Metrics.settlements.WithLabelValues(models.SettlementDistributeReward, "failure"))
	if got != 1 {
		t.Fatalf("expected one failed settlement, got %v", got)
	}
}

func TestEndGameRecoversPanickingTransfer(t *testing.T) {
	f := newFixture(t)
	matchPubKey := f.seedMatch(t, 5, "alice", "bob", "carol")
	f.settlement.panicFrom["bob"] = true

	result, err := f.server.EndGame(context.Background(), matchPubKey, "alice")
	if err != nil {
		t.Fatalf("end game: %v", err)
	}
	if result.Delta != 5 {
		t.Fatalf("expected carol's payout only, delta %d", result.Delta)
	}
}

func TestEndGameUnreadableBalanceCountsAsZero(t *testing.T) {
	f := newFixture(t)
	matchPubKey := f.seedMatch(t, 5, "alice", "bob")
	f.settlement.failRead = true

	result, err := f.server.EndGame(context.Background(), matchPubKey, "alice")
	if err != nil {
		t.Fatalf("end game: %v", err)
	}
	if result.BalanceBefore != 0 || result.BalanceAfter != 0 || result.Delta != 0 {
		t.Fatalf("expected zero balances, got %+v", result)
	}
	if len(result.Payouts) != 1 || !result.Payouts[0].Succeeded() {
		t.Fatalf("transfer should still run: %+v", result.Payouts)
	}
}

func TestEndGameRejectsNonMemberWinner(t *testing.T) {
	f := newFixture(t)
	matchPubKey := f.seedMatch(t, 5, "alice", "bob")

	_, err := f.server.EndGame(context.Background(), matchPubKey, "mallory")
	if !errors.Is(err, ErrWinnerNotMember) || !IsMembershipViolation(err) {
		t.Fatalf("expected ErrWinnerNotMember, got %v", err)
	}
	if n := f.settlement.settlementCalls(); n != 0 {
		t.Fatalf("expected no settlement calls, got %d", n)
	}
}

func TestFaultingStoreBlocksSettlement(t *testing.T) {
	f := newFixture(t)
	matchPubKey := f.seedMatch(t, 5, "alice", "bob")
	f.store.failGetMatch = true
	before := f.store.mutations
	ctx := context.Background()

	if _, err := f.server.LeaveGame(ctx, matchPubKey, "bob"); err == nil {
		t.Fatalf("leave should fail")
	}
	if _, err := f.server.EndGame(ctx, matchPubKey, "alice"); err == nil {
		t.Fatalf("end game should fail")
	}
	if n := f.settlement.settlementCalls(); n != 0 {
		t.Fatalf("expected no settlement calls, got %d", n)
	}
	if f.store.mutations != before {
		t.Fatalf("expected no store mutations")
	}
}

func TestGetMatchUnknownIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.server.GetMatch(context.Background(), "nope")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
