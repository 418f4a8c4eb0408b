package http

import (
	"net/http"
	"strings"

	"saldo/internal/core"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, p principal) {
	var typ core.TransactionType
	if v := strings.TrimSpace(r.URL.Query().Get("type")); v != "" {
		parsed, err := core.ParseTransactionType(v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		typ = parsed
	}

	categories, err := s.categories.List(r.Context(), p.accessor, typ)
	if err != nil {
		writeError(w, r, err)
		return
	}
	categories = nonNil(categories)
	OK(categories).Count(len(categories)).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, p principal) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := req.toCategory()
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.categories.Create(r.Context(), p.accessor, c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(created).Message("Category created").Write(w)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request, p principal) {
	c, err := s.categories.Get(r.Context(), p.accessor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(c).Write(w)
}

// handleUpdateCategory serves both PUT and PATCH; either way only the keys
// present in the body change.
func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request, p principal) {
	patch, err := parseCategoryPatch(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.categories.Update(r.Context(), p.accessor, r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(c).Message("Category updated").Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, p principal) {
	if err := s.categories.Delete(r.Context(), p.accessor, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Message("Category deleted").Write(w)
}

// handleListTransactions returns one page of transactions; count is the
// total number of matching rows.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, p principal) {
	filter, err := parseTransactionFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	txs, total, err := s.transactions.List(r.Context(), p.accessor, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(nonNil(txs)).Count(total).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, p principal) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := req.toTransaction()
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.transactions.Create(r.Context(), p.accessor, t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(created).Message("Transaction created").Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request, p principal) {
	t, err := s.transactions.Get(r.Context(), p.accessor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(t).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, p principal) {
	patch, err := parseTransactionPatch(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.transactions.Update(r.Context(), p.accessor, r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(t).Message("Transaction updated").Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, p principal) {
	if err := s.transactions.Delete(r.Context(), p.accessor, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Message("Transaction deleted").Write(w)
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request, p principal) {
	t, err := s.transactions.MarkPaid(r.Context(), p.accessor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(t).Message("Transaction marked as paid").Write(w)
}

func (s *Server) handleMarkUnpaid(w http.ResponseWriter, r *http.Request, p principal) {
	t, err := s.transactions.MarkUnpaid(r.Context(), p.accessor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(t).Message("Transaction marked as unpaid").Write(w)
}

func (s *Server) handleTogglePaid(w http.ResponseWriter, r *http.Request, p principal) {
	t, err := s.transactions.TogglePaid(r.Context(), p.accessor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(t).Message("Payment status toggled").Write(w)
}

// handleSummary aggregates the caller's own transactions, optionally within
// an inclusive date range.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, p principal) {
	start, end, err := parseDateRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.summary.Summary(r.Context(), p.accessor, start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(summary).Write(w)
}
