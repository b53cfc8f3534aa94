package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/tablepoints/tablepoints-backend/pkg/errors"
)

// ParseQueryInt reads an integer query parameter, substituting defaultVal
// when the parameter is absent and enforcing the inclusive [min, max] range.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be an integer").
			WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" is out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}
