package api

import (
	"net/http"

	"trade-ledger/internal/ledger"
)

func (s *Server) handleGetPositionHistory(w http.ResponseWriter, r *http.Request) {
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

	// Prior fills are included by default; entry prices at fromMs are wrong
	// without them. includePrior=false opts out for callers that only care
	// about flows inside the window.
	includePrior := true
	if v := r.URL.Query().Get("includePrior"); v != "" {
		includePrior, err = parseBoolParam(r, "includePrior")
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
	}

	positions, err := s.positions.GetPositionHistory(r.Context(), ledger.PositionParams{
		User:         user,
		Coin:         r.URL.Query().Get("coin"),
		FromMs:       fromMs,
		ToMs:         toMs,
		BuilderOnly:  builderOnly,
		IncludePrior: includePrior,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}
