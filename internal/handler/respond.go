package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/vellum/internal/domain"
)

// validate is the shared request validator. Struct tags on the request types
// drive it.
var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON decodes a JSON request body into dst and validates it. Unknown
// fields are rejected so typos surface instead of silently defaulting.
func decodeJSON(r *http.Request, dst any) error {
	const op = "handler.decode"

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.WrapError(err, domain.EINVALID, op, "malformed request body")
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return domain.Invalid(op, fmt.Sprintf("field %s failed on %s",
				strings.ToLower(f.Field()), f.Tag()))
		}
		return domain.WrapError(err, domain.EINVALID, op, "invalid request")
	}
	return nil
}

// respondJSON writes v as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}
