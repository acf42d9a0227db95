package devserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const maxItemsBody = 1 << 20

type itemInsert struct {
	UserID        string `json:"user_id"`
	Title         string `json:"title"`
	EncryptedData string `json:"encrypted_data"`
}

// restAuth authenticates a /rest/v1 request, writing the PostgREST error
// itself on failure.
func (s *Server) restAuth(w http.ResponseWriter, r *http.Request) (*Claims, bool) {
	claims, err := s.authenticate(r)
	switch {
	case err == nil:
		return claims, true
	case errors.Is(err, errMissingBearer):
		writeRestError(w, http.StatusUnauthorized, "PGRST302", "Anonymous access is disabled")
	case errors.Is(err, ErrInvalidToken), errors.Is(err, errSessionRevoked):
		writeRestError(w, http.StatusUnauthorized, "PGRST301", "JWT expired")
	default:
		s.log.Error("authenticate failed", "error", err)
		writeRestError(w, http.StatusInternalServerError, "PGRST000", "Internal server error")
	}
	return nil, false
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.restAuth(w, r)
	if !ok {
		return
	}

	var desc bool
	switch order := r.URL.Query().Get("order"); order {
	case "", "created_at.asc":
	case "created_at.desc":
		desc = true
	default:
		writeRestError(w, http.StatusBadRequest, "PGRST100", "unsupported order: "+order)
		return
	}

	items, err := s.repo.listItems(r.Context(), claims.Subject, desc)
	if err != nil {
		s.restInternal(w, "list items", err)
		return
	}
	writeJSONStatus(w, http.StatusOK, items)
}

func (s *Server) handleInsertItems(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.restAuth(w, r)
	if !ok {
		return
	}

	inserts, err := decodeInserts(http.MaxBytesReader(w, r.Body, maxItemsBody))
	if err != nil {
		writeRestError(w, http.StatusBadRequest, "PGRST102", "Empty or invalid json")
		return
	}

	created := make([]item, 0, len(inserts))
	for _, in := range inserts {
		if in.UserID != claims.Subject {
			writeRestError(w, http.StatusForbidden, "42501", `new row violates row-level security policy for table "vault_items"`)
			return
		}
		if in.Title == "" || in.EncryptedData == "" {
			writeRestError(w, http.StatusBadRequest, "23502", `null value in column violates not-null constraint`)
			return
		}
		created = append(created, item{
			ID:            uuid.NewString(),
			UserID:        in.UserID,
			Title:         in.Title,
			EncryptedData: in.EncryptedData,
			CreatedAt:     s.cfg.Now(),
		})
	}

	for i := range created {
		if err := s.repo.insertItem(r.Context(), &created[i]); err != nil {
			s.restInternal(w, "insert item", err)
			return
		}
	}

	if wantsRepresentation(r) {
		writeJSONStatus(w, http.StatusCreated, created)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteItems(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.restAuth(w, r)
	if !ok {
		return
	}

	id, found := strings.CutPrefix(r.URL.Query().Get("id"), "eq.")
	if !found || id == "" {
		writeRestError(w, http.StatusBadRequest, "PGRST100", "delete requires an id=eq. filter")
		return
	}

	deleted, err := s.repo.deleteItem(r.Context(), claims.Subject, id)
	if err != nil {
		s.restInternal(w, "delete item", err)
		return
	}

	if !wantsRepresentation(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	rows := []item{}
	if deleted != nil {
		rows = append(rows, *deleted)
	}
	writeJSONStatus(w, http.StatusOK, rows)
}

func (s *Server) restInternal(w http.ResponseWriter, op string, err error) {
	s.log.Error("request failed", "op", op, "error", err)
	writeRestError(w, http.StatusInternalServerError, "PGRST000", "Internal server error")
}

// decodeInserts accepts a single object or an array of objects.
func decodeInserts(body io.Reader) ([]itemInsert, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty body")
	}

	if raw[0] == '[' {
		var many []itemInsert
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one itemInsert
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []itemInsert{one}, nil
}

func wantsRepresentation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Prefer"), "return=representation")
}
