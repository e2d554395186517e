package api

import (
	"net/http"

	"trade-ledger/internal/ledger"
)

func (s *Server) handleGetPnl(w http.ResponseWriter, r *http.Request) {
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
	maxStartCapital, err := parseFloatParam(r, "maxStartCapital", s.cfg.MaxStartCapital)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.pnl.CalculatePnl(r.Context(), ledger.PnlParams{
		User:            user,
		Coin:            r.URL.Query().Get("coin"),
		FromMs:          fromMs,
		ToMs:            toMs,
		BuilderOnly:     builderOnly,
		MaxStartCapital: maxStartCapital,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
