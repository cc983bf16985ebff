package solana

import "crypto/sha256"

// Instruction names exposed by the settlement program.
const (
	InstructionLeave            = "leave"
	InstructionDistributeReward = "distribute_reward"
)

// Discriminator returns the 8-byte selector the program dispatches name on.
func Discriminator(name string) [8]byte {
	var d [8]byte
	sum := sha256.Sum256([]byte("global:" + name))
	copy(d[:], sum[:8])
	return d
}

func instructionData(name string, bump uint8) []byte {
	d := Discriminator(name)
	return append(d[:], bump)
}

// SignerSeeds are the seeds of the program signer that owns a user's escrow in a match.
func SignerSeeds(match, user PublicKey) [][]byte {
	return [][]byte{match[:], user[:]}
}

// LeaveAccounts are the accounts of a leave instruction.
type LeaveAccounts struct {
	Match          PublicKey
	ProgramSigner  PublicKey
	UserMatchToken PublicKey
	UserToken      PublicKey
	User           PublicKey
	Mint           PublicKey
	Authority      PublicKey
}

// NewLeaveInstruction refunds the escrow in UserMatchToken to UserToken.
func NewLeaveInstruction(programID PublicKey, accts LeaveAccounts, bump uint8) Instruction {
	return Instruction{
		ProgramID: programID,
		Accounts: []AccountMeta{
			{PublicKey: accts.Match},
			{PublicKey: accts.ProgramSigner},
			{PublicKey: accts.UserMatchToken, IsWritable: true},
			{PublicKey: accts.UserToken, IsWritable: true},
			{PublicKey: accts.User},
			{PublicKey: accts.Mint},
			{PublicKey: accts.Authority, IsSigner: true, IsWritable: true},
			{PublicKey: TokenProgramID},
		},
		Data: instructionData(InstructionLeave, bump),
	}
}

// RewardAccounts are the accounts of a distribute_reward instruction.
type RewardAccounts struct {
	Match          PublicKey
	ProgramSigner  PublicKey
	FromMatchToken PublicKey
	WinnerToken    PublicKey
	Winner         PublicKey
	Mint           PublicKey
	Authority      PublicKey
}

// NewDistributeRewardInstruction moves the escrow in FromMatchToken to WinnerToken.
func NewDistributeRewardInstruction(programID PublicKey, accts RewardAccounts, bump uint8) Instruction {
	return Instruction{
		ProgramID: programID,
		Accounts: []AccountMeta{
			{PublicKey: accts.Match},
			{PublicKey: accts.ProgramSigner},
			{PublicKey: accts.FromMatchToken, IsWritable: true},
			{PublicKey: accts.WinnerToken, IsWritable: true},
			{PublicKey: accts.Winner},
			{PublicKey: accts.Mint},
			{PublicKey: accts.Authority, IsSigner: true, IsWritable: true},
			{PublicKey: TokenProgramID},
		},
		Data: instructionData(InstructionDistributeReward, bump),
	}
}
