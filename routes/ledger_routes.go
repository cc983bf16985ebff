package routes

import (
	"solana_game_server/controllers"

	"github.com/gorilla/mux"
)

// RegisterLedgerRoutes exposes the local ledger under /api/ledger
func RegisterLedgerRoutes(r *mux.Router, controller *controllers.LedgerController) {
	ledgerRouter := r.PathPrefix("/api/ledger").Subrouter()
	ledgerRouter.HandleFunc("/mint", controller.Mint).Methods("POST")
	ledgerRouter.HandleFunc("/blocks", controller.Blocks).Methods("GET")
}
