package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/personaforge/personaforge/pkg/api/middleware"
	"github.com/personaforge/personaforge/pkg/api/response"
	"github.com/personaforge/personaforge/pkg/logger"
)

// decodeAndValidate reads the JSON body into v and runs struct validation.
// It writes the error response and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst interface{}) bool {
	requestID := middleware.GetRequestID(r.Context())
	if err := response.Decode(r, dst); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, err.Error(), requestID)
		return false
	}
	if err := v.Struct(dst); err != nil {
		msg, fields := validationMessage(err)
		var details map[string]interface{}
		if len(fields) > 0 {
			details = map[string]interface{}{"fields": fields}
		}
		response.ErrorWithDetails(w, http.StatusBadRequest, response.ErrCodeValidationFailed, msg, details, requestID)
		return false
	}
	return true
}

// validationMessage renders validator errors as "field: tag" pairs and
// returns the failed rule per field.
func validationMessage(err error) (string, map[string]string) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error(), nil
	}
	parts := make([]string, 0, len(ve))
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[field] = rule
		parts = append(parts, fmt.Sprintf("%s: %s", field, rule))
	}
	return "validation failed: " + strings.Join(parts, ", "), fields
}

// queryInt parses a non-negative integer query parameter. A missing
// parameter yields def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// fail logs err on the request logger and writes the mapped error response.
func fail(w http.ResponseWriter, r *http.Request, log logger.Logger, msg string, err error) {
	ctx := r.Context()
	status := response.HTTPStatusFromError(err)
	if status >= http.StatusInternalServerError {
		log.ErrorContext(ctx, msg, "error", err)
	} else {
		log.DebugContext(ctx, msg, "error", err)
	}
	response.HandleError(w, err, middleware.GetRequestID(ctx))
}
