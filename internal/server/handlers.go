package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nibzard/ordo/internal/orderindex"
	"github.com/nibzard/ordo/internal/tasks"
	"github.com/nibzard/ordo/internal/todo"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, todo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tasks.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, orderindex.ErrRebalanceExhausted),
		errors.Is(err, orderindex.ErrUnknownItem):
		return http.StatusConflict
	case errors.Is(err, orderindex.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, orderindex.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorBody{
		Error:     err.Error(),
		Retryable: orderindex.IsRetryable(err),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", tasks.ErrInvalidInput, err)
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", tasks.ErrInvalidInput, name, v)
	}
	return n, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.Users(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if users == nil {
		users = []tasks.UserStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", s.pageSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit <= 0 || limit > MaxPageSize {
		s.writeError(w, r, fmt.Errorf("%w: limit must be in [1, %d]", tasks.ErrInvalidInput, MaxPageSize))
		return
	}
	dir, err := orderindex.ParseDirection(q.Get("order"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", tasks.ErrInvalidInput, err))
		return
	}
	filter, err := tasks.ParseFilter(q.Get("filter"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	listing, err := s.svc.List(r.Context(), r.PathValue("user"), tasks.Page{
		Offset:    offset,
		Limit:     limit,
		Direction: dir,
		Filter:    filter,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

type createRequest struct {
	tasks.Draft
	Placement string `json:"placement,omitempty"`
	Anchor    string `json:"anchor,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	placement, err := tasks.ParsePlacement(req.Placement, req.Anchor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	task, err := s.svc.Create(r.Context(), r.PathValue("user"), req.Draft, placement)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.Get(r.Context(), r.PathValue("user"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch tasks.Patch
	if err := decodeBody(w, r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	task, err := s.svc.Update(r.Context(), r.PathValue("user"), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("user"), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveRequest struct {
	Window []string `json:"window,omitempty"`
	Target *int     `json:"target"`
	Order  string   `json:"order,omitempty"`
}

type assignmentBody struct {
	ID         string `json:"id"`
	OrderIndex int64  `json:"order_index"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Target == nil {
		s.writeError(w, r, fmt.Errorf("%w: target is required", tasks.ErrInvalidInput))
		return
	}
	dir, err := orderindex.ParseDirection(req.Order)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", tasks.ErrInvalidInput, err))
		return
	}

	plan, err := s.svc.Move(r.Context(), r.PathValue("user"), tasks.MoveRequest{
		Window:    req.Window,
		ItemID:    r.PathValue("id"),
		Target:    *req.Target,
		Direction: dir,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]assignmentBody, len(plan))
	for i, a := range plan {
		out[i] = assignmentBody{ID: a.ID, OrderIndex: int64(a.Key)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": out})
}

func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	plan, err := s.svc.Rebalance(r.Context(), r.PathValue("user"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rebalanced": len(plan)})
}
