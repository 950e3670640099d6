package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/repository"
	"SignalDesk/internal/usecase"
)

const validSignal = `{"signal_id":"sig-1","pair":"EUR/USD","type":"BUY","entry_price":1.085,"sl":1.083,"tp":1.089,"confidence_score":88}`

func newIngress(t *testing.T) (*IngressHandler, *repository.MemorySignalRepository) {
	t.Helper()
	repo := repository.NewMemorySignalRepository()
	lc := usecase.NewLifecycleManager(repo, repository.NopEventPublisher{}, nil, usecase.DefaultLifecycleConfig(), nil)
	return NewIngressHandler(usecase.NewSignalIngest(repo, lc, nil), repo, ingressSecret, nil), repo
}

func TestCreateSignal(t *testing.T) {
	h, repo := newIngress(t)
	rec, env := serve(t, h, http.MethodPost, "/signals", IngressSecretHeader, ingressSecret, validSignal)
	expectStatus(t, rec, http.StatusCreated)
	if env.Status != http.StatusCreated {
		t.Fatalf("envelope status = %d", env.Status)
	}

	sig, err := repo.Get(context.Background(), "sig-1")
	if err != nil {
		t.Fatalf("signal not stored: %v", err)
	}
	if sig.Status != models.StatusWaiting || sig.Symbol != "EURUSD=X" || sig.Direction != models.Long {
		t.Fatalf("unexpected signal %+v", sig)
	}
}

func TestCreateSignalRequiresSecret(t *testing.T) {
	h, _ := newIngress(t)
	rec, _ := serve(t, h, http.MethodPost, "/signals", IngressSecretHeader, "wrong", validSignal)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec, _ = serve(t, h, http.MethodPost, "/signals", IngressSecretHeader, "", validSignal)
	expectStatus(t, rec, http.StatusUnauthorized)

	// the decision key is not accepted on ingress
	rec, _ = serve(t, h, http.MethodPost, "/signals", DecisionKeyHeader, ingressSecret, validSignal)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestCreateSignalValidation(t *testing.T) {
	h, _ := newIngress(t)
	rec, _ := serve(t, h, http.MethodPost, "/signals", IngressSecretHeader, ingressSecret,
		`{"signal_id":"sig-2","pair":"EUR/USD","type":"HOLD","entry_price":1.1}`)
	expectStatus(t, rec, http.StatusBadRequest)

	rec, _ = serve(t, h, http.MethodPost, "/signals", IngressSecretHeader, ingressSecret,
		`{"signal_id":"sig-3","pair":"EUR/USD","type":"BUY","entry_price":1.1,"timestamp":"yesterday"}`)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestUpdateStatus(t *testing.T) {
	h, _ := newIngress(t)
	rec, _ := serve(t, h, http.MethodPost, "/signals", IngressSecretHeader, ingressSecret, validSignal)
	expectStatus(t, rec, http.StatusCreated)

	rec, env := serve(t, h, http.MethodPatch, "/signals/status", IngressSecretHeader, ingressSecret,
		`{"signal_id":"sig-1","status":"ENTRY_HIT","current_price":1.085}`)
	expectStatus(t, rec, http.StatusOK)
	var upd usecase.StatusUpdate
	if err := json.Unmarshal(env.Data, &upd); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if !upd.Applied || upd.Signal.Status != models.StatusEntryHit {
		t.Fatalf("update = %+v", upd)
	}
}

func TestUpdateStatusErrors(t *testing.T) {
	h, _ := newIngress(t)
	rec, _ := serve(t, h, http.MethodPatch, "/signals/status", IngressSecretHeader, ingressSecret,
		`{"signal_id":"missing","status":"ACTIVE"}`)
	expectStatus(t, rec, http.StatusNotFound)

	serve(t, h, http.MethodPost, "/signals", IngressSecretHeader, ingressSecret, validSignal)
	rec, _ = serve(t, h, http.MethodPatch, "/signals/status", IngressSecretHeader, ingressSecret,
		`{"signal_id":"sig-1","status":"TP2_HIT"}`)
	expectStatus(t, rec, http.StatusConflict)

	rec, _ = serve(t, h, http.MethodPatch, "/signals/status", IngressSecretHeader, ingressSecret,
		`{"signal_id":"sig-1","status":"DONE"}`)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestUpdateStatusOnResolvedSignal(t *testing.T) {
	h, _ := newIngress(t)
	serve(t, h, http.MethodPost, "/signals", IngressSecretHeader, ingressSecret, validSignal)
	serve(t, h, http.MethodPatch, "/signals/status", IngressSecretHeader, ingressSecret, `{"signal_id":"sig-1","status":"EXPIRED"}`)

	rec, env := serve(t, h, http.MethodPatch, "/signals/status", IngressSecretHeader, ingressSecret,
		`{"signal_id":"sig-1","status":"ACTIVE"}`)
	expectStatus(t, rec, http.StatusOK)
	var upd usecase.StatusUpdate
	if err := json.Unmarshal(env.Data, &upd); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if upd.Applied || upd.Signal.Status != models.StatusExpired {
		t.Fatalf("resolved signal changed: %+v", upd)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newIngress(t)
	rec, _ := serve(t, h, http.MethodGet, "/health", IngressSecretHeader, ingressSecret, "")
	expectStatus(t, rec, http.StatusOK)

	rec, _ = serve(t, h, http.MethodGet, "/health", IngressSecretHeader, "", "")
	expectStatus(t, rec, http.StatusUnauthorized)

	repo := downRepo{repository.NewMemorySignalRepository()}
	down := NewIngressHandler(nil, repo, ingressSecret, nil)
	rec, env := serve(t, down, http.MethodGet, "/health", IngressSecretHeader, ingressSecret, "")
	expectStatus(t, rec, http.StatusServiceUnavailable)
	var hs healthStatus
	if err := json.Unmarshal(env.Data, &hs); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if hs.Status != "unhealthy" || hs.Store != "disconnected" {
		t.Fatalf("health = %+v", hs)
	}
}
