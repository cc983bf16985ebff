package ledger

// Transfer is one token movement recorded by the ledger.
type Transfer struct {
	Kind        string `json:"kind"`
	MatchPubKey string `json:"matchPubKey"`
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      uint64 `json:"amount"`
}

// Block links a transfer to its predecessor by hash.
type Block struct {
	Index     int      `json:"index"`
	Timestamp int64    `json:"timestamp"`
	PrevHash  string   `json:"prevHash"`
	Transfer  Transfer `json:"transfer"`
	Hash      string   `json:"hash"`
}
