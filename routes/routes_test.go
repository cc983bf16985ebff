package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"solana_game_server/controllers"
	"solana_game_server/ledger"
	"solana_game_server/models"
	"solana_game_server/services"
	"solana_game_server/solana"
	"solana_game_server/utils"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

type staticLinker struct{}

func (staticLinker) OutcomeURL(_ context.Context, matchPubKey string) (string, error) {
	return "https://outcomes.example/" + matchPubKey + ".json", nil
}

func newTestRouter(t *testing.T) (*mux.Router, *ledger.Ledger) {
	t.Helper()
	registry := prometheus.NewRegistry()
	l := ledger.New(solana.TokenProgramID, 0, nil)
	server := &services.GameServer{
		Store:      services.NewMemoryMatchStore(),
		Settlement: l,
		Metrics:    services.NewMetrics(registry),
	}
	r := mux.NewRouter()
	RegisterRoutes(r, registry)
	RegisterMatchRoutes(r, controllers.NewMatchController(server, staticLinker{}, nil))
	RegisterLedgerRoutes(r, &controllers.LedgerController{Ledger: l})
	return r, l
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func key(t *testing.T) string {
	t.Helper()
	kp, err := utils.NewStringKeyPair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	return kp.PublicKey
}

func player(t *testing.T) models.UserItem {
	return models.UserItem{UserPubKey: key(t), UserTokenPubKey: key(t), UserMatchTokenPubKey: key(t)}
}

func TestMatchLifecycleOverHTTP(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/match", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var created map[string]string
	json.Unmarshal(rec.Body.Bytes(), &created)
	match := created["matchPubKey"]

	alice, bob := player(t), player(t)
	for _, p := range []models.UserItem{alice, bob} {
		if rec := do(t, r, http.MethodPost, "/api/ledger/mint", map[string]interface{}{"account": p.UserMatchTokenPubKey, "amount": 40}); rec.Code != http.StatusOK {
			t.Fatalf("mint: %d %s", rec.Code, rec.Body)
		}
		if rec := do(t, r, http.MethodPost, "/api/match/"+match+"/users", p); rec.Code != http.StatusOK {
			t.Fatalf("add user: %d %s", rec.Code, rec.Body)
		}
	}

	rec = do(t, r, http.MethodGet, "/api/match/"+match, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rec.Code, rec.Body)
	}
	if strings.Contains(rec.Body.String(), "secretKey") {
		t.Fatalf("match view leaks the secret key: %s", rec.Body)
	}

	rec = do(t, r, http.MethodPost, "/api/match/"+match+"/end", map[string]string{"winnerPubKey": alice.UserPubKey})
	if rec.Code != http.StatusOK {
		t.Fatalf("end: %d %s", rec.Code, rec.Body)
	}
	var result models.EndGameResult
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result.Delta != 40 || len(result.Payouts) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	rec = do(t, r, http.MethodPost, "/api/match/"+match+"/leave", map[string]string{"userPubKey": alice.UserPubKey})
	if rec.Code != http.StatusOK {
		t.Fatalf("leave: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, r, http.MethodGet, "/api/match/"+match+"/outcome-url", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), match+".json") {
		t.Fatalf("outcome url: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, r, http.MethodGet, "/api/ledger/blocks", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"valid":true`) {
		t.Fatalf("blocks: %d %s", rec.Code, rec.Body)
	}
}

func TestErrorMapping(t *testing.T) {
	r, _ := newTestRouter(t)

	if rec := do(t, r, http.MethodGet, "/api/match/"+key(t), nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown match: %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/api/match/not-a-key", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad key: %d", rec.Code)
	}

	rec := do(t, r, http.MethodPost, "/api/match", nil)
	var created map[string]string
	json.Unmarshal(rec.Body.Bytes(), &created)
	match := created["matchPubKey"]

	if rec := do(t, r, http.MethodPost, "/api/match/"+match+"/end", map[string]string{"winnerPubKey": key(t)}); rec.Code != http.StatusConflict {
		t.Fatalf("non-member winner: %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, r, http.MethodPost, "/api/match/"+match+"/leave", map[string]string{"userPubKey": key(t)}); rec.Code != http.StatusConflict {
		t.Fatalf("non-member leave: %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, r, http.MethodPost, "/api/match/"+key(t)+"/users", player(t)); rec.Code != http.StatusNotFound {
		t.Fatalf("add to unknown match: %d %s", rec.Code, rec.Body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/match", nil)

	if rec := do(t, r, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	rec := do(t, r, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `solana_game_operations_total{op="create_match",result="success"} 1`) {
		t.Fatalf("metrics: %d %s", rec.Code, rec.Body)
	}
}
