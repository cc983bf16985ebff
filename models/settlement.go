package models

import (
	"math"

	"github.com/shopspring/decimal"
)

// ProgramSigner is a program-derived address and the bump seed that produced it
type ProgramSigner struct {
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
}

// TokenBalance is a token account balance in base units
type TokenBalance struct {
	Amount   uint64          `json:"amount"`
	Decimals uint8           `json:"decimals"`
	UIAmount decimal.Decimal `json:"uiAmount"`
}

// LeaveArgs refunds a departing user's escrow to their personal token account
type LeaveArgs struct {
	MatchPubKey string
	User        UserRecord
	Signer      ProgramSigner
}

// RewardArgs moves a losing member's escrow to the winner's token account
type RewardArgs struct {
	MatchPubKey       string
	From              UserRecord
	WinnerTokenPubKey string
	WinnerPubKey      string
	Signer            ProgramSigner
}

// PayoutOutcome records one member's reward transfer during EndGame
type PayoutOutcome struct {
	UserPubKey string `json:"userPubKey"`
	Signature  string `json:"signature,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Succeeded reports whether the transfer landed
func (p PayoutOutcome) Succeeded() bool {
	return p.Error == ""
}

// EndGameResult is the outcome of settling a match
type EndGameResult struct {
	MatchPubKey   string          `json:"matchPubKey"`
	WinnerPubKey  string          `json:"winnerPubKey"`
	BalanceBefore uint64          `json:"balanceBefore"`
	BalanceAfter  uint64          `json:"balanceAfter"`
	Delta         int64           `json:"delta"`
	Payouts       []PayoutOutcome `json:"payouts"`
}

// BalanceDelta is after minus before, clamped to the int64 range.
func BalanceDelta(before, after uint64) int64 {
	if after >= before {
		if d := after - before; d <= math.MaxInt64 {
			return int64(d)
		}
		return math.MaxInt64
	}
	if d := before - after; d <= math.MaxInt64 {
		return -int64(d)
	}
	return math.MinInt64
}
