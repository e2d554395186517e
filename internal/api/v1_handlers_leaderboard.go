package api

import (
	"net/http"

	"trade-ledger/internal/ledger"
)

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if !ledger.ValidMetric(metric) {
		writeAPIError(w, http.StatusBadRequest, "validation_error",
			"invalid metric: must be one of volume, pnl, returnPct")
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
	limit, err := parseLimitParam(r, ledger.DefaultLeaderboardLimit, ledger.MaxLeaderboardLimit)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.leaderboard.GetLeaderboard(r.Context(), ledger.LeaderboardParams{
		Metric:          metric,
		Coin:            r.URL.Query().Get("coin"),
		FromMs:          fromMs,
		ToMs:            toMs,
		BuilderOnly:     builderOnly,
		MaxStartCapital: maxStartCapital,
		Limit:           limit,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
