package solana

import (
	"crypto/ed25519"
	"errors"
	"sort"
)

// AccountMeta is one account referenced by an instruction.
type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// Message is a compiled legacy transaction message.
type Message struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
	AccountKeys                 []PublicKey
	RecentBlockhash             PublicKey
	Instructions                []compiledInstruction
}

type compiledInstruction struct {
	ProgramIDIndex uint8
	AccountIndexes []uint8
	Data           []byte
}

// appendCompactU16 appends n in the shortvec encoding: 7 bits per byte, low bits first.
func appendCompactU16(buf []byte, n int) []byte {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// CompileMessage orders the accounts of instructions behind feePayer and indexes
// every instruction against that table. Accounts are grouped as writable signers,
// readonly signers, writable non-signers, then readonly non-signers.
func CompileMessage(feePayer PublicKey, blockhash PublicKey, instructions ...Instruction) (Message, error) {
	if len(instructions) == 0 {
		return Message{}, errors.New("message has no instructions")
	}

	metas := []AccountMeta{{PublicKey: feePayer, IsSigner: true, IsWritable: true}}
	position := map[PublicKey]int{feePayer: 0}
	add := func(meta AccountMeta) {
		if i, ok := position[meta.PublicKey]; ok {
			metas[i].IsSigner = metas[i].IsSigner || meta.IsSigner
			metas[i].IsWritable = metas[i].IsWritable || meta.IsWritable
			return
		}
		position[meta.PublicKey] = len(metas)
		metas = append(metas, meta)
	}
	for _, ix := range instructions {
		for _, meta := range ix.Accounts {
			add(meta)
		}
		add(AccountMeta{PublicKey: ix.ProgramID})
	}
	if len(metas) > 256 {
		return Message{}, errors.New("message references more than 256 accounts")
	}

	rank := func(m AccountMeta) int {
		switch {
		case m.IsSigner && m.IsWritable:
			return 0
		case m.IsSigner:
			return 1
		case m.IsWritable:
			return 2
		default:
			return 3
		}
	}
	// The fee payer stays first; it always ranks 0.
	rest := metas[1:]
	sort.SliceStable(rest, func(i, j int) bool {
		return rank(rest[i]) < rank(rest[j])
	})

	msg := Message{RecentBlockhash: blockhash}
	index := make(map[PublicKey]uint8, len(metas))
	for i, m := range metas {
		index[m.PublicKey] = uint8(i)
		msg.AccountKeys = append(msg.AccountKeys, m.PublicKey)
		switch rank(m) {
		case 0:
			msg.NumRequiredSignatures++
		case 1:
			msg.NumRequiredSignatures++
			msg.NumReadonlySignedAccounts++
		case 3:
			msg.NumReadonlyUnsignedAccounts++
		}
	}

	for _, ix := range instructions {
		compiled := compiledInstruction{ProgramIDIndex: index[ix.ProgramID], Data: ix.Data}
		for _, meta := range ix.Accounts {
			compiled.AccountIndexes = append(compiled.AccountIndexes, index[meta.PublicKey])
		}
		msg.Instructions = append(msg.Instructions, compiled)
	}
	return msg, nil
}

// Serialize returns the wire form of the message, which is also the signed payload.
func (m Message) Serialize() []byte {
	buf := []byte{m.NumRequiredSignatures, m.NumReadonlySignedAccounts, m.NumReadonlyUnsignedAccounts}
	buf = appendCompactU16(buf, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		buf = append(buf, k[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)
	buf = appendCompactU16(buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = appendCompactU16(buf, len(ix.AccountIndexes))
		buf = append(buf, ix.AccountIndexes...)
		buf = appendCompactU16(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}
	return buf
}

// Transaction is a message and its signatures, in account-key order.
type Transaction struct {
	Signatures [][]byte
	Message    Message
}

// SignTransaction signs msg with the given keys. Every required signer of msg must
// be present among signers.
func SignTransaction(msg Message, signers ...ed25519.PrivateKey) (Transaction, error) {
	byKey := make(map[PublicKey]ed25519.PrivateKey, len(signers))
	for _, s := range signers {
		byKey[WalletPublicKey(s)] = s
	}
	payload := msg.Serialize()
	tx := Transaction{Message: msg}
	for i := 0; i < int(msg.NumRequiredSignatures); i++ {
		key, ok := byKey[msg.AccountKeys[i]]
		if !ok {
			return Transaction{}, errors.New("missing signer " + msg.AccountKeys[i].String())
		}
		tx.Signatures = append(tx.Signatures, ed25519.Sign(key, payload))
	}
	return tx, nil
}

// Serialize returns the wire form accepted by sendTransaction.
func (tx Transaction) Serialize() []byte {
	buf := appendCompactU16(nil, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		buf = append(buf, sig...)
	}
	return append(buf, tx.Message.Serialize()...)
}
