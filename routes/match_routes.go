package routes

import (
	"solana_game_server/controllers"

	"github.com/gorilla/mux"
)

// RegisterMatchRoutes sets up routes for match lifecycle operations under /api/match
func RegisterMatchRoutes(r *mux.Router, controller *controllers.MatchController) {
	matchRouter := r.PathPrefix("/api/match").Subrouter()

	matchRouter.HandleFunc("", controller.CreateMatch).Methods("POST")
	matchRouter.HandleFunc("/{matchPubKey}", controller.GetMatch).Methods("GET")
	matchRouter.HandleFunc("/{matchPubKey}/users", controller.AddUser).Methods("POST")
	matchRouter.HandleFunc("/{matchPubKey}/leave", controller.LeaveGame).Methods("POST")
	matchRouter.HandleFunc("/{matchPubKey}/end", controller.EndGame).Methods("POST")
	matchRouter.HandleFunc("/{matchPubKey}/outcome-url", controller.GetOutcomeURL).Methods("GET")
}
