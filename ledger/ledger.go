// Package ledger is an in-process settlement backend. Token accounts live in
// memory and every transfer is appended to a hash-linked chain of blocks, so a
// local deployment can run whole matches without a Solana cluster.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"solana_game_server/logging"
	"solana_game_server/models"
	"solana_game_server/solana"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

const kindMint = "mint"

var (
	// ErrAccountNotFound is returned when reading a token account that never held funds.
	ErrAccountNotFound = errors.New("could not find account")
	// ErrSignerMismatch is returned when a settlement names the wrong program signer.
	ErrSignerMismatch = errors.New("program signer does not match match and user")
)

// FaultFunc lets callers fail chosen settlements. A non-nil error aborts the
// transfer before any balance moves.
type FaultFunc func(kind string, from string) error

// Ledger holds token balances and the chain of transfers that produced them.
type Ledger struct {
	mu        sync.RWMutex
	programID solana.PublicKey
	decimals  uint8
	balances  map[string]uint64
	blocks    []Block
	fault     FaultFunc
	logger    *slog.Logger
}

// New creates a ledger whose program signers are derived under programID.
func New(programID solana.PublicKey, decimals uint8, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = logging.Discard()
	}
	l := &Ledger{
		programID: programID,
		decimals:  decimals,
		balances:  make(map[string]uint64),
		logger:    logger,
	}
	genesis := Block{Index: 0, Timestamp: time.Now().Unix(), PrevHash: "0", Transfer: Transfer{Kind: "genesis"}}
	genesis.Hash = calculateHash(genesis)
	l.blocks = append(l.blocks, genesis)
	return l
}

// SetFault installs fn as the fault hook. Pass nil to clear it.
func (l *Ledger) SetFault(fn FaultFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fault = fn
}

// Mint credits amount to account.
func (l *Ledger) Mint(account string, amount uint64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
	return l.appendLocked(Transfer{Kind: kindMint, To: account, Amount: amount})
}

// FindProgramSigner derives the signer exactly as the on-chain program does.
func (l *Ledger) FindProgramSigner(matchPubKey, userPubKey string) (models.ProgramSigner, error) {
	match, err := solana.ParsePublicKey(matchPubKey)
	if err != nil {
		return models.ProgramSigner{}, err
	}
	user, err := solana.ParsePublicKey(userPubKey)
	if err != nil {
		return models.ProgramSigner{}, err
	}
	addr, bump, err := solana.FindProgramAddress(solana.SignerSeeds(match, user), l.programID)
	if err != nil {
		return models.ProgramSigner{}, err
	}
	return models.ProgramSigner{Address: addr.String(), Bump: bump}, nil
}

// Leave moves the user's whole escrow back to their token account.
func (l *Ledger) Leave(ctx context.Context, args models.LeaveArgs) (string, error) {
	if err := l.checkSigner(args.MatchPubKey, args.User.UserPubKey, args.Signer); err != nil {
		return "", err
	}
	return l.transfer(ctx, Transfer{
		Kind:        models.SettlementLeave,
		MatchPubKey: args.MatchPubKey,
		From:        args.User.UserMatchTokenPubKey,
		To:          args.User.UserTokenPubKey,
	})
}

// DistributeReward moves the member's whole escrow to the winner's token account.
func (l *Ledger) DistributeReward(ctx context.Context, args models.RewardArgs) (string, error) {
	if err := l.checkSigner(args.MatchPubKey, args.From.UserPubKey, args.Signer); err != nil {
		return "", err
	}
	return l.transfer(ctx, Transfer{
		Kind:        models.SettlementDistributeReward,
		MatchPubKey: args.MatchPubKey,
		From:        args.From.UserMatchTokenPubKey,
		To:          args.WinnerTokenPubKey,
	})
}

// TokenBalance returns the balance of tokenAccount.
func (l *Ledger) TokenBalance(_ context.Context, tokenAccount string) (models.TokenBalance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	amount, ok := l.balances[tokenAccount]
	if !ok {
		return models.TokenBalance{}, fmt.Errorf("%s: %w", tokenAccount, ErrAccountNotFound)
	}
	return models.TokenBalance{
		Amount:   amount,
		Decimals: l.decimals,
		UIAmount: decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(l.decimals)),
	}, nil
}

func (l *Ledger) checkSigner(matchPubKey, userPubKey string, signer models.ProgramSigner) error {
	want, err := l.FindProgramSigner(matchPubKey, userPubKey)
	if err != nil {
		return err
	}
	if want != signer {
		return ErrSignerMismatch
	}
	return nil
}

func (l *Ledger) transfer(ctx context.Context, t Transfer) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fault != nil {
		if err := l.fault(t.Kind, t.From); err != nil {
			return "", err
		}
	}
	amount, ok := l.balances[t.From]
	if !ok {
		return "", fmt.Errorf("%s: %w", t.From, ErrAccountNotFound)
	}
	t.Amount = amount
	l.balances[t.From] = 0
	l.balances[t.To] += amount
	signature, err := l.appendLocked(t)
	if err != nil {
		return "", err
	}
	l.logger.Info("✅ Ledger transfer", "kind", t.Kind, "from", t.From, "to", t.To, "amount", amount, "signature", signature)
	return signature, nil
}

// appendLocked links t onto the chain and returns its signature. l.mu must be held.
func (l *Ledger) appendLocked(t Transfer) (string, error) {
	latest := l.blocks[len(l.blocks)-1]
	block := Block{
		Index:     latest.Index + 1,
		Timestamp: time.Now().Unix(),
		PrevHash:  latest.Hash,
		Transfer:  t,
	}
	block.Hash = calculateHash(block)
	if err := validateBlock(block, latest); err != nil {
		return "", fmt.Errorf("invalid block: %w", err)
	}
	l.blocks = append(l.blocks, block)
	return signatureOf(block), nil
}

// Blocks returns a copy of the chain.
func (l *Ledger) Blocks() []Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}

// Verify checks the genesis block and every hash link after it.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.blocks) == 0 || l.blocks[0].PrevHash != "0" {
		return errors.New("invalid genesis block")
	}
	for i := 1; i < len(l.blocks); i++ {
		if err := validateBlock(l.blocks[i], l.blocks[i-1]); err != nil {
			return fmt.Errorf("block %d invalid: %w", i, err)
		}
	}
	return nil
}

func validateBlock(current, previous Block) error {
	if current.Index != previous.Index+1 {
		return fmt.Errorf("invalid index: expected %d, got %d", previous.Index+1, current.Index)
	}
	if current.PrevHash != previous.Hash {
		return fmt.Errorf("invalid prev hash: expected %s, got %s", previous.Hash, current.PrevHash)
	}
	if expected := calculateHash(current); current.Hash != expected {
		return fmt.Errorf("invalid hash: expected %s, got %s", expected, current.Hash)
	}
	return nil
}

func calculateHash(block Block) string {
	transfer, _ := json.Marshal(block.Transfer)
	data := fmt.Sprintf("%d%d%s%s", block.Index, block.Timestamp, block.PrevHash, transfer)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// signatureOf renders a block hash the way Solana renders transaction signatures.
func signatureOf(block Block) string {
	raw, _ := hex.DecodeString(block.Hash)
	return base58.Encode(raw)
}
