// Package solana settles matches against the escrow program over Solana JSON-RPC.
package solana

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"solana_game_server/logging"
	"solana_game_server/models"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

type rpcCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Options configures a Client.
type Options struct {
	Endpoint          string
	Wallet            ed25519.PrivateKey
	ProgramID         string
	MintKey           string
	Commitment        string
	RequestsPerSecond float64
	RequestTimeout    time.Duration
	Logger            *slog.Logger
}

// Client signs settlement instructions with the server wallet and submits them.
type Client struct {
	rpc        rpcCaller
	closer     func()
	limiter    *rate.Limiter
	wallet     ed25519.PrivateKey
	programID  PublicKey
	mint       PublicKey
	commitment string
	timeout    time.Duration
	logger     *slog.Logger
}

// Dial connects to opts.Endpoint, resolving cluster names first.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	endpoint := ClusterURL(opts.Endpoint)
	conn, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	c, err := newClient(conn, opts)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.closer = conn.Close
	c.logger.Info("✅ Connected to Solana RPC", "endpoint", endpoint, "program", c.programID.String())
	return c, nil
}

func newClient(caller rpcCaller, opts Options) (*Client, error) {
	if len(opts.Wallet) != ed25519.PrivateKeySize {
		return nil, errors.New("wallet key is required")
	}
	programID, err := ParsePublicKey(opts.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}
	mint, err := ParsePublicKey(opts.MintKey)
	if err != nil {
		return nil, fmt.Errorf("mint key: %w", err)
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	c := &Client{
		rpc:        caller,
		limiter:    rate.NewLimiter(limit, 1),
		wallet:     opts.Wallet,
		programID:  programID,
		mint:       mint,
		commitment: opts.Commitment,
		timeout:    opts.RequestTimeout,
		logger:     opts.Logger,
	}
	if c.commitment == "" {
		c.commitment = "processed"
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	return c, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Authority is the wallet address that pays for and signs settlements.
func (c *Client) Authority() PublicKey {
	return WalletPublicKey(c.wallet)
}

// FindProgramSigner derives the program signer for (match, user). No RPC is made.
func (c *Client) FindProgramSigner(matchPubKey, userPubKey string) (models.ProgramSigner, error) {
	match, err := ParsePublicKey(matchPubKey)
	if err != nil {
		return models.ProgramSigner{}, err
	}
	user, err := ParsePublicKey(userPubKey)
	if err != nil {
		return models.ProgramSigner{}, err
	}
	addr, bump, err := FindProgramAddress(SignerSeeds(match, user), c.programID)
	if err != nil {
		return models.ProgramSigner{}, err
	}
	return models.ProgramSigner{Address: addr.String(), Bump: bump}, nil
}

// Leave refunds args.User's escrow to their token account.
func (c *Client) Leave(ctx context.Context, args models.LeaveArgs) (string, error) {
	keys, err := parseKeys(
		args.MatchPubKey,
		args.Signer.Address,
		args.User.UserMatchTokenPubKey,
		args.User.UserTokenPubKey,
		args.User.UserPubKey,
	)
	if err != nil {
		return "", err
	}
	ix := NewLeaveInstruction(c.programID, LeaveAccounts{
		Match:          keys[0],
		ProgramSigner:  keys[1],
		UserMatchToken: keys[2],
		UserToken:      keys[3],
		User:           keys[4],
		Mint:           c.mint,
		Authority:      c.Authority(),
	}, args.Signer.Bump)
	return c.send(ctx, ix)
}

// DistributeReward moves args.From's escrow to the winner's token account.
func (c *Client) DistributeReward(ctx context.Context, args models.RewardArgs) (string, error) {
	keys, err := parseKeys(
		args.MatchPubKey,
		args.Signer.Address,
		args.From.UserMatchTokenPubKey,
		args.WinnerTokenPubKey,
		args.WinnerPubKey,
	)
	if err != nil {
		return "", err
	}
	ix := NewDistributeRewardInstruction(c.programID, RewardAccounts{
		Match:          keys[0],
		ProgramSigner:  keys[1],
		FromMatchToken: keys[2],
		WinnerToken:    keys[3],
		Winner:         keys[4],
		Mint:           c.mint,
		Authority:      c.Authority(),
	}, args.Signer.Bump)
	return c.send(ctx, ix)
}

type tokenAmount struct {
	Amount         string `json:"amount"`
	Decimals       uint8  `json:"decimals"`
	UIAmountString string `json:"uiAmountString"`
}

// TokenBalance reads the balance of a token account.
func (c *Client) TokenBalance(ctx context.Context, tokenAccount string) (models.TokenBalance, error) {
	var result struct {
		Value tokenAmount `json:"value"`
	}
	err := c.call(ctx, &result, "getTokenAccountBalance", tokenAccount, map[string]string{"commitment": c.commitment})
	if err != nil {
		return models.TokenBalance{}, err
	}
	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return models.TokenBalance{}, fmt.Errorf("invalid token amount %q: %w", result.Value.Amount, err)
	}
	ui := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(result.Value.Decimals))
	if result.Value.UIAmountString != "" {
		if parsed, err := decimal.NewFromString(result.Value.UIAmountString); err == nil {
			ui = parsed
		}
	}
	return models.TokenBalance{Amount: amount, Decimals: result.Value.Decimals, UIAmount: ui}, nil
}

func (c *Client) latestBlockhash(ctx context.Context) (PublicKey, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, &result, "getLatestBlockhash", map[string]string{"commitment": c.commitment}); err != nil {
		return PublicKey{}, err
	}
	return ParsePublicKey(result.Value.Blockhash)
}

// send compiles ix into a transaction paid for and signed by the wallet.
func (c *Client) send(ctx context.Context, ix Instruction) (string, error) {
	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return "", err
	}
	msg, err := CompileMessage(c.Authority(), blockhash, ix)
	if err != nil {
		return "", err
	}
	tx, err := SignTransaction(msg, c.wallet)
	if err != nil {
		return "", err
	}
	var signature string
	err = c.call(ctx, &signature, "sendTransaction",
		base64.StdEncoding.EncodeToString(tx.Serialize()),
		map[string]string{"encoding": "base64", "preflightCommitment": c.commitment},
	)
	if err != nil {
		return "", err
	}
	if want := base58.Encode(tx.Signatures[0]); signature != want {
		c.logger.Warn("⚠️ RPC returned an unexpected signature", "got", signature, "want", want)
	}
	c.logger.Debug("✅ Transaction submitted", "signature", signature)
	return signature, nil
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func parseKeys(keys ...string) ([]PublicKey, error) {
	out := make([]PublicKey, len(keys))
	for i, k := range keys {
		pk, err := ParsePublicKey(k)
		if err != nil {
			return nil, err
		}
		out[i] = pk
	}
	return out, nil
}
