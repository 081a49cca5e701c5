package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"wallet/internal/core"
	"wallet/internal/log"
	"wallet/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	images := &stagedImages{}
	defer images.cleanup()
	in, err := req.input(user, images)
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := s.deps.Ledger.Record(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.recorded.Add(1)
	s.invalidate(r.Context(), user, t.AccountID)
	writeOK(w, http.StatusCreated, "transaction recorded", toTransactionJSON(t))
}

func (s *Server) handleAmend(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	var req amendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	images := &stagedImages{}
	defer images.cleanup()
	patch, err := req.patch(images)
	if err != nil {
		writeError(w, r, err)
		return
	}

	old, err := s.ownedTransaction(r.Context(), id, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if patch.AccountID != nil && *patch.AccountID != old.AccountID {
		if err := s.checkDestination(r.Context(), *patch.AccountID, user); err != nil {
			writeError(w, r, err)
			return
		}
	}

	t, err := s.deps.Ledger.Amend(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.amended.Add(1)
	s.invalidate(r.Context(), user, old.AccountID, t.AccountID)
	writeOK(w, http.StatusOK, "transaction updated", toTransactionJSON(t))
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	accountID := strings.TrimSpace(r.URL.Query().Get("account_id"))
	if accountID == "" {
		writeError(w, r, core.Validation(core.ErrMissingAccount))
		return
	}
	if _, err := s.ownedTransaction(r.Context(), id, user); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.deps.Ledger.Remove(r.Context(), id, accountID); err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.removed.Add(1)
	s.invalidate(r.Context(), user, accountID)
	writeOK(w, http.StatusOK, "transaction deleted", map[string]string{"id": id})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := parseTransactionQuery(r, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.deps.Transactions.ListTransactions(r.Context(), q)
	if err != nil {
		writeError(w, r, core.Unavailable(err, "list transactions"))
		return
	}
	writeOK(w, http.StatusOK, "", toTransactionsJSON(txs))
}

// parseTransactionQuery reads account_id, from, to, order and limit.
func parseTransactionQuery(r *http.Request, user string) (store.TransactionQuery, error) {
	v := r.URL.Query()
	q := store.TransactionQuery{
		UserID:    user,
		AccountID: strings.TrimSpace(v.Get("account_id")),
		Desc:      true,
		Limit:     defaultListLimit,
	}
	var err error
	if q.From, err = parseDate(v.Get("from")); err != nil {
		return q, err
	}
	if q.To, err = parseDate(v.Get("to")); err != nil {
		return q, err
	}
	// a bare "to" day includes that whole day
	if to := strings.TrimSpace(v.Get("to")); len(to) == len("2006-01-02") {
		q.To = q.To.AddDate(0, 0, 1).Add(-1)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, core.Validation(errors.New("to must not be before from"))
	}
	switch strings.ToLower(strings.TrimSpace(v.Get("order"))) {
	case "", "desc":
	case "asc":
		q.Desc = false
	default:
		return q, core.Validation(errors.New("order must be asc or desc"))
	}
	if l := strings.TrimSpace(v.Get("limit")); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return q, core.Validation(errors.New("limit must be a positive integer"))
		}
		q.Limit = min(n, maxListLimit)
	}
	return q, nil
}

// ownedTransaction loads a transaction and hides other users' records.
func (s *Server) ownedTransaction(ctx context.Context, id, user string) (core.Transaction, error) {
	t, err := s.deps.Transactions.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.Transaction{}, core.NotFound("transaction %s not found", id)
		}
		return core.Transaction{}, core.Unavailable(err, "get transaction %s", id)
	}
	if t.UserID != "" && t.UserID != user {
		log.FromContext(ctx).WarnContext(ctx, "Transaction owned by another user",
			log.FieldTransactionID, id, log.FieldUserID, user)
		return core.Transaction{}, core.NotFound("transaction %s not found", id)
	}
	return t, nil
}

// checkDestination rejects moving a transaction onto someone else's account.
func (s *Server) checkDestination(ctx context.Context, accountID, user string) error {
	a, err := s.deps.Accounts.Get(ctx, accountID)
	if errors.Is(err, core.ErrNotFound) || (err == nil && a.UserID != "" && a.UserID != user) {
		return core.NotFound("account %s not found", accountID)
	}
	return err
}
