package http

import (
	"context"
	"net/http"

	"wallet/internal/cache"
	"wallet/internal/core"
	"wallet/internal/services"
)

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	images := &stagedImages{}
	defer images.cleanup()
	image, err := images.ref(req.Image)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.deps.Accounts.Create(r.Context(), services.NewAccount{
		Name:     sanitizeInput(req.Name),
		UserID:   user,
		Currency: req.Currency,
		Image:    image,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(r.Context(), user)
	writeOK(w, http.StatusCreated, "account created", toAccountJSON(a))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	key := cache.AccountListKey(user)
	if s.deps.ListCache != nil {
		if list, ok := s.deps.ListCache.Get(r.Context(), key); ok {
			s.metrics.cacheHits.Add(1)
			writeOK(w, http.StatusOK, "", toAccountsJSON(list))
			return
		}
		s.metrics.cacheMisses.Add(1)
	}
	list, err := s.deps.Accounts.List(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.deps.ListCache != nil {
		s.deps.ListCache.Set(r.Context(), key, list)
	}
	writeOK(w, http.StatusOK, "", toAccountsJSON(list))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.cachedAccount(r.Context(), r.PathValue("id"), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", toAccountJSON(a))
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	var req updateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.ownedAccount(r.Context(), id, user); err != nil {
		writeError(w, r, err)
		return
	}

	p := services.AccountPatch{Currency: req.Currency}
	if req.Name != nil {
		name := sanitizeInput(*req.Name)
		p.Name = &name
	}
	if req.Image != nil {
		images := &stagedImages{}
		defer images.cleanup()
		image, err := images.ref(*req.Image)
		if err != nil {
			writeError(w, r, err)
			return
		}
		p.Image = &image
	}
	a, err := s.deps.Accounts.Update(r.Context(), id, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(r.Context(), user, id)
	writeOK(w, http.StatusOK, "account updated", toAccountJSON(a))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if _, err := s.ownedAccount(r.Context(), id, user); err != nil {
		writeError(w, r, err)
		return
	}
	removed, err := s.deps.Accounts.Delete(r.Context(), id)
	// a partial cascade still changed what readers see
	s.invalidate(r.Context(), user, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "account deleted", map[string]any{"id": id, "removed_transactions": removed})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if _, err := s.ownedAccount(r.Context(), id, user); err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := s.deps.Ledger.Reconcile(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.reconciled.Add(1)
	s.invalidate(r.Context(), user, id)
	msg := "account consistent"
	if rep.Repaired {
		msg = "account repaired"
	}
	writeOK(w, http.StatusOK, msg, toReportJSON(rep))
}

// ownedAccount reads an account from the store and hides other users' records.
func (s *Server) ownedAccount(ctx context.Context, id, user string) (core.Account, error) {
	a, err := s.deps.Accounts.Get(ctx, id)
	if err != nil {
		return core.Account{}, err
	}
	if a.UserID != "" && a.UserID != user {
		return core.Account{}, core.NotFound("account %s not found", id)
	}
	return a, nil
}

// cachedAccount is ownedAccount behind the account cache.
func (s *Server) cachedAccount(ctx context.Context, id, user string) (core.Account, error) {
	key := cache.AccountKey(id)
	if s.deps.AccountCache != nil {
		if a, ok := s.deps.AccountCache.Get(ctx, key); ok {
			s.metrics.cacheHits.Add(1)
			if a.UserID != "" && a.UserID != user {
				return core.Account{}, core.NotFound("account %s not found", id)
			}
			return a, nil
		}
		s.metrics.cacheMisses.Add(1)
	}
	a, err := s.ownedAccount(ctx, id, user)
	if err != nil {
		return core.Account{}, err
	}
	if s.deps.AccountCache != nil {
		s.deps.AccountCache.Set(ctx, key, a)
	}
	return a, nil
}
