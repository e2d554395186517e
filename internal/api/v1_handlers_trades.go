package api

import (
	"net/http"

	"trade-ledger/internal/ledger"
)

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	user, err := requireUserParam(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	fromMs, toMs, err := parseWindow(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	builderOnly, err := parseBoolParam(r, "builderOnly")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	collapseBy := r.URL.Query().Get("collapseBy")
	switch collapseBy {
	case "", "hash", "oid", "tid":
	default:
		writeAPIError(w, http.StatusBadRequest, "validation_error",
			"invalid collapseBy: must be one of hash, oid, tid")
		return
	}

	trades, err := s.trades.GetTrades(r.Context(), ledger.TradeParams{
		User:        user,
		Coin:        r.URL.Query().Get("coin"),
		FromMs:      fromMs,
		ToMs:        toMs,
		BuilderOnly: builderOnly,
		CollapseBy:  collapseBy,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}
