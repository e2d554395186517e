package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"trade-ledger/internal/hyperliquid"
	"trade-ledger/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}

// writeServiceError maps pipeline failures to the boundary statuses: upstream
// trouble is a 502 with transport details withheld, anything else a 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var upstream *hyperliquid.UpstreamError
	if errors.As(err, &upstream) {
		writeAPIError(w, http.StatusBadGateway, "upstream_error",
			fmt.Sprintf("upstream %s request failed", upstream.Op))
		return
	}
	writeAPIError(w, http.StatusInternalServerError, "internal", "internal error")
}

// requireUserParam validates and canonicalizes the ?user= query param.
func requireUserParam(r *http.Request) (string, error) {
	raw := r.URL.Query().Get("user")
	if raw == "" {
		return "", errors.New("missing required parameter: user")
	}
	addr := models.NormalizeAddress(raw)
	if addr == "" {
		return "", fmt.Errorf("invalid address: %q", raw)
	}
	return addr, nil
}

// parseWindow reads fromMs/toMs with defaults 0 and now.
func parseWindow(r *http.Request) (fromMs, toMs int64, err error) {
	fromMs, err = parseMsParam(r, "fromMs", 0)
	if err != nil {
		return 0, 0, err
	}
	toMs, err = parseMsParam(r, "toMs", time.Now().UnixMilli())
	if err != nil {
		return 0, 0, err
	}
	return fromMs, toMs, nil
}

func parseMsParam(r *http.Request, name string, def int64) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func parseBoolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	switch v {
	case "":
		return false, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s: %q", name, v)
}

func parseFloatParam(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return f, nil
}

func parseLimitParam(r *http.Request, def, max int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > max {
		return 0, fmt.Errorf("invalid limit: %q (must be 1..%d)", v, max)
	}
	return n, nil
}
