// Package httpapi exposes the marketplace operations over a small REST
// surface consumed by the UI.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	app "github.com/ReLoop-Network/market_layer/internal/app"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/job"
	"github.com/ReLoop-Network/market_layer/internal/app/ledger"
	"github.com/ReLoop-Network/market_layer/internal/app/metrics"
	identitysvc "github.com/ReLoop-Network/market_layer/internal/app/services/identity"
	jobssvc "github.com/ReLoop-Network/market_layer/internal/app/services/jobs"
	walletsvc "github.com/ReLoop-Network/market_layer/internal/app/services/wallet"
	"github.com/ReLoop-Network/market_layer/internal/app/storage"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app          *app.Application
	transactions storage.TransactionStore
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application, transactions storage.TransactionStore) http.Handler {
	h := &handler{app: application, transactions: transactions}
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", h.jobs)
	mux.HandleFunc("/jobs/", h.jobResources)
	mux.HandleFunc("/users/", h.users)
	mux.HandleFunc("/identity/", h.identities)
	mux.HandleFunc("/wallet", h.wallet)
	mux.HandleFunc("/wallet/", h.walletActions)
	mux.HandleFunc("/transactions", h.listTransactions)
	mux.HandleFunc("/stats", h.stats)
	mux.HandleFunc("/events", h.app.Events.ServeHTTP)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// jobView hides the contact record until a job has been claimed.
func jobView(j job.Job) job.Job {
	if j.Status == job.StatusPosted {
		j.Contact = nil
	}
	return j
}

func (h *handler) jobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Title       string       `json:"title"`
			Description string       `json:"description"`
			Material    job.Material `json:"material"`
			WeightKg    float64      `json:"weight_kg"`
			Location    string       `json:"location"`
			Contact     *job.Contact `json:"contact"`
			PhotoURI    string       `json:"photo_uri"`
			Poster      string       `json:"poster"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := h.app.Jobs.Create(r.Context(), jobssvc.CreateInput{
			Title:       payload.Title,
			Description: payload.Description,
			Material:    payload.Material,
			WeightKg:    payload.WeightKg,
			Location:    payload.Location,
			Contact:     payload.Contact,
			PhotoURI:    payload.PhotoURI,
			Poster:      payload.Poster,
		})
		if err != nil {
			writeBusinessError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, jobView(created))

	case http.MethodGet:
		jobs, err := h.app.Jobs.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		views := make([]job.Job, 0, len(jobs))
		for _, j := range jobs {
			views = append(views, jobView(j))
		}
		writeJSON(w, http.StatusOK, views)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) jobResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/jobs"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		j, err := h.app.Jobs.Get(r.Context(), id)
		if err != nil {
			writeBusinessError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, jobView(j))
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch parts[1] {
	case "claim":
		var payload struct {
			Actor string `json:"actor"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		j, err := h.app.Jobs.Claim(r.Context(), id, payload.Actor)
		if err != nil {
			writeBusinessError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, j)

	case "complete":
		var payload struct {
			Actor          string  `json:"actor"`
			ActualWeightKg float64 `json:"actual_weight_kg"`
			Note           string  `json:"note"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		j, err := h.app.Jobs.Complete(r.Context(), id, jobssvc.CompletionProof{
			Actor:          payload.Actor,
			ActualWeightKg: payload.ActualWeightKg,
			Note:           payload.Note,
		})
		if err != nil {
			writeBusinessError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, j)

	case "release":
		var payload struct {
			Actor string `json:"actor"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		j, err := h.app.Jobs.ReleasePayment(r.Context(), id, payload.Actor)
		if err != nil {
			writeBusinessError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, j)

	case "dispute":
		var payload struct {
			Actor          string  `json:"actor"`
			Reason         string  `json:"reason"`
			ProposedAmount float64 `json:"proposed_amount"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		dispute, err := h.app.Jobs.SubmitDispute(r.Context(), id, jobssvc.DisputeInput{
			Actor:          payload.Actor,
			Reason:         payload.Reason,
			ProposedAmount: payload.ProposedAmount,
		})
		if err != nil {
			writeBusinessError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, dispute)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) users(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	address := strings.Trim(strings.TrimPrefix(r.URL.Path, "/users"), "/")
	if address == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	profile, err := h.app.Jobs.Profile(r.Context(), address)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *handler) identities(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/identity"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	address := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			rec, err := h.app.Identity.Get(r.Context(), address)
			if err != nil {
				writeBusinessError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, rec)
		case http.MethodPost:
			rec, err := h.app.Identity.EnsureIdentity(r.Context(), address)
			if err != nil {
				writeBusinessError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, rec)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if parts[1] != "credentials" || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var payload struct {
		Issuer   string `json:"issuer"`
		Activity string `json:"activity"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cred, err := h.app.Identity.IssueCredential(r.Context(), payload.Issuer, address, payload.Activity)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cred)
}

func (h *handler) wallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Wallet.Session())
}

func (h *handler) walletActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch strings.Trim(strings.TrimPrefix(r.URL.Path, "/wallet"), "/") {
	case "connect":
		var payload struct {
			Mode string `json:"mode"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sess, err := h.app.Wallet.Connect(r.Context(), payload.Mode)
		if err != nil {
			writeBusinessError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)

	case "disconnect":
		if err := h.app.Wallet.Disconnect(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "refresh":
		balance, err := h.app.Wallet.RefreshBalance(r.Context())
		if err != nil {
			writeBusinessError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]float64{"balance": balance})

	case "send":
		var payload struct {
			To     string  `json:"to"`
			Amount float64 `json:"amount"`
			JobID  string  `json:"job_id"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		rec, err := h.app.Wallet.Send(r.Context(), h.transactions, walletsvc.TxRequest{
			To:     payload.To,
			Amount: payload.Amount,
			JobID:  payload.JobID,
		})
		if err != nil {
			writeBusinessError(w, err)
			return
		}
		h.app.Monitor.Watch(rec.ID)
		writeJSON(w, http.StatusCreated, rec)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	txs, err := h.app.Jobs.Transactions(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	agg, err := h.app.Jobs.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// writeBusinessError maps typed service failures onto HTTP status codes.
func writeBusinessError(w http.ResponseWriter, err error) {
	var (
		validation *jobssvc.ValidationError
		transition *jobssvc.InvalidTransitionError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &transition):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, jobssvc.ErrNotFound),
		errors.Is(err, identitysvc.ErrIdentityNotFound),
		errors.Is(err, ledger.ErrNoWallet):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, jobssvc.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, walletsvc.ErrNotConnected), errors.Is(err, walletsvc.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ledger.ErrUnavailable):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

func decodeJSON(body io.Reader, out interface{}) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
