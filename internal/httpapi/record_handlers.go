package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"credledger.org/internal/audit"
	"credledger.org/internal/auth"
	"credledger.org/internal/ledger"
)

type createRecordRequest struct {
	ID         string `json:"id"`
	Department string `json:"department"`
	Payload    string `json:"payload"`
}

func (a *API) handleRecordsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createRecord(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleRecordResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/records/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.readRecord(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

// createRecord forwards a write to the ledger under the principal's resolved
// wallet identity. The controller itself only validates and scopes.
func (a *API) createRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "id is required")
		return
	}
	if len(id) > 64 {
		writeError(w, r, http.StatusBadRequest, "id must be <=64 characters")
		return
	}

	// Every department source present must clear the policy. A roll-shaped
	// identifier binds the record to its owning department; the payload
	// field cannot override that binding, only supply scope for
	// identifiers that carry none.
	dept := strings.TrimSpace(req.Department)
	if dept != "" && !a.enforceDepartment(w, r, dept) {
		return
	}
	if dept == "" || auth.IsRollNumber(id) {
		if !a.enforceDepartment(w, r, id) {
			return
		}
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	session, err := a.gateway.Connect(r.Context(), principal.MSPID)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	defer session.Close()

	result, err := session.Submit(r.Context(), "CreateRecord", id, req.Payload)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "record.create", map[string]any{
		"record_id": id,
		"msp_id":    principal.MSPID,
	})

	w.Header().Set("Location", "/v1/records/"+id)
	writeRaw(w, http.StatusCreated, result)
}

func (a *API) readRecord(w http.ResponseWriter, r *http.Request, id string) {
	if !a.enforceDepartment(w, r, id) {
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	session, err := a.gateway.Connect(r.Context(), principal.MSPID)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	defer session.Close()

	result, err := session.Evaluate(r.Context(), "ReadRecord", id)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, result)
}

func handleLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrNoIdentity):
		writeError(w, r, http.StatusForbidden, "no ledger identity for this role")
	case errors.Is(err, ledger.ErrDuplicateEntry):
		writeError(w, r, http.StatusConflict, "record already exists")
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "record not found")
	default:
		writeError(w, r, http.StatusBadGateway, "ledger operation failed")
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRaw passes through a JSON document already encoded by the ledger.
func writeRaw(w http.ResponseWriter, code int, data []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
