package controllers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"solana_game_server/logging"
	"solana_game_server/models"
	"solana_game_server/services"
	"solana_game_server/utils"

	"github.com/gorilla/mux"
)

// OutcomeLinker hands out read links for archived match outcomes.
type OutcomeLinker interface {
	OutcomeURL(ctx context.Context, matchPubKey string) (string, error)
}

// MatchController exposes the match lifecycle over HTTP
type MatchController struct {
	Server   *services.GameServer
	Outcomes OutcomeLinker
	Logger   *slog.Logger
}

// NewMatchController creates a new MatchController instance
func NewMatchController(server *services.GameServer, outcomes OutcomeLinker, logger *slog.Logger) *MatchController {
	if logger == nil {
		logger = logging.Discard()
	}
	return &MatchController{Server: server, Outcomes: outcomes, Logger: logger}
}

// matchView is the public form of a match. The secret key never leaves the server.
type matchView struct {
	MatchPubKey string              `json:"matchPubKey"`
	Users       []models.UserRecord `json:"users"`
}

func newMatchView(m models.Match) matchView {
	users := m.Users
	if users == nil {
		users = []models.UserRecord{}
	}
	return matchView{MatchPubKey: m.MatchPubKey, Users: users}
}

// matchPubKey reads and validates the path key
func matchPubKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := mux.Vars(r)["matchPubKey"]
	if !utils.IsPublicKey(key) {
		utils.WriteError(w, http.StatusBadRequest, "matchPubKey must be a base58 public key")
		return "", false
	}
	return key, true
}

// writeServiceError maps orchestrator failures to HTTP statuses
func (mc *MatchController) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case services.IsNotFound(err):
		utils.WriteError(w, http.StatusNotFound, err.Error())
	case services.IsMembershipViolation(err):
		utils.WriteError(w, http.StatusConflict, err.Error())
	default:
		utils.WriteError(w, http.StatusBadGateway, err.Error())
	}
}

// CreateMatch handles POST /api/match
func (mc *MatchController) CreateMatch(w http.ResponseWriter, r *http.Request) {
	key, err := mc.Server.CreateMatch(r.Context())
	if err != nil {
		mc.writeServiceError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusCreated, map[string]string{"matchPubKey": key})
}

// GetMatch handles GET /api/match/{matchPubKey}
func (mc *MatchController) GetMatch(w http.ResponseWriter, r *http.Request) {
	key, ok := matchPubKey(w, r)
	if !ok {
		return
	}
	match, err := mc.Server.GetMatch(r.Context(), key)
	if err != nil {
		mc.writeServiceError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, newMatchView(match))
}

// AddUser handles POST /api/match/{matchPubKey}/users and responds with the
// membership that resulted
func (mc *MatchController) AddUser(w http.ResponseWriter, r *http.Request) {
	key, ok := matchPubKey(w, r)
	if !ok {
		return
	}
	var user models.UserItem
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	for _, k := range []string{user.UserPubKey, user.UserTokenPubKey, user.UserMatchTokenPubKey} {
		if !utils.IsPublicKey(k) {
			utils.WriteError(w, http.StatusBadRequest, "userPubKey, userTokenPubKey and userMatchTokenPubKey must be base58 public keys")
			return
		}
	}

	mc.Server.AddSignedUserToMatch(r.Context(), key, user)

	match, err := mc.Server.GetMatch(r.Context(), key)
	if err != nil {
		mc.writeServiceError(w, err)
		return
	}
	if !match.HasUser(user.UserPubKey) {
		utils.WriteError(w, http.StatusBadGateway, "user was not admitted")
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, newMatchView(match))
}

// LeaveGame handles POST /api/match/{matchPubKey}/leave
func (mc *MatchController) LeaveGame(w http.ResponseWriter, r *http.Request) {
	key, ok := matchPubKey(w, r)
	if !ok {
		return
	}
	var payload struct {
		UserPubKey string `json:"userPubKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || !utils.IsPublicKey(payload.UserPubKey) {
		utils.WriteError(w, http.StatusBadRequest, "userPubKey must be a base58 public key")
		return
	}
	signature, err := mc.Server.LeaveGame(r.Context(), key, payload.UserPubKey)
	if err != nil {
		mc.writeServiceError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"signature": signature})
}

// EndGame handles POST /api/match/{matchPubKey}/end
func (mc *MatchController) EndGame(w http.ResponseWriter, r *http.Request) {
	key, ok := matchPubKey(w, r)
	if !ok {
		return
	}
	var payload struct {
		WinnerPubKey string `json:"winnerPubKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || !utils.IsPublicKey(payload.WinnerPubKey) {
		utils.WriteError(w, http.StatusBadRequest, "winnerPubKey must be a base58 public key")
		return
	}
	result, err := mc.Server.EndGame(r.Context(), key, payload.WinnerPubKey)
	if err != nil {
		mc.writeServiceError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, result)
}

// GetOutcomeURL handles GET /api/match/{matchPubKey}/outcome-url
func (mc *MatchController) GetOutcomeURL(w http.ResponseWriter, r *http.Request) {
	key, ok := matchPubKey(w, r)
	if !ok {
		return
	}
	if mc.Outcomes == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "outcome archive is not configured")
		return
	}
	url, err := mc.Outcomes.OutcomeURL(r.Context(), key)
	if err != nil {
		mc.Logger.Error("❌ Failed to presign outcome", "matchPubKey", key, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "Failed to generate read pre-signed URL")
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"url": url})
}
