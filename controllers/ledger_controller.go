package controllers

import (
	"encoding/json"
	"net/http"

	"solana_game_server/ledger"
	"solana_game_server/utils"
)

// LedgerController exposes the in-process ledger when running without a cluster
type LedgerController struct {
	Ledger *ledger.Ledger
}

// Mint handles POST /api/ledger/mint
func (lc *LedgerController) Mint(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Account string `json:"account"`
		Amount  uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || !utils.IsPublicKey(payload.Account) || payload.Amount == 0 {
		utils.WriteError(w, http.StatusBadRequest, "account must be a base58 public key and amount positive")
		return
	}
	signature, err := lc.Ledger.Mint(payload.Account, payload.Amount)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"signature": signature})
}

// Blocks handles GET /api/ledger/blocks
func (lc *LedgerController) Blocks(w http.ResponseWriter, r *http.Request) {
	verified := ""
	if err := lc.Ledger.Verify(); err != nil {
		verified = err.Error()
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"blocks":      lc.Ledger.Blocks(),
		"valid":       verified == "",
		"verifyError": verified,
	})
}
