package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/chronohq/chrono/chronosdk"
)

var validate *validator.Validate

// This init is used to create a validator and register validation-specific
// functionality for the HTTP API.
//
// A single validator instance is used, because it caches struct parsing.
func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Write outputs a standardized format to an HTTP response body.
func Write(ctx context.Context, rw http.ResponseWriter, status int, response any) {
	select {
	case <-ctx.Done():
		// The client is gone; there is nobody to respond to.
		return
	default:
	}

	// Pre-encode to catch marshal failures before any bytes hit the wire.
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(response); err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	_, _ = rw.Write(buf.Bytes())
}

// Read decodes JSON from the HTTP request into the value provided. It uses
// go-validator to validate the incoming request body, writing a 400 with
// field-scoped errors on failure.
func Read(ctx context.Context, rw http.ResponseWriter, r *http.Request, value any) bool {
	err := json.NewDecoder(r.Body).Decode(value)
	if err != nil {
		Write(ctx, rw, http.StatusBadRequest, chronosdk.Response{
			Message: "Request body must be valid JSON.",
			Detail:  err.Error(),
		})
		return false
	}
	err = validate.Struct(value)
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apiErrors := make([]chronosdk.ValidationError, 0, len(validationErrors))
		for _, validationError := range validationErrors {
			apiErrors = append(apiErrors, chronosdk.ValidationError{
				Field:  validationError.Field(),
				Detail: fmt.Sprintf("Validation failed for tag %q with value: \"%v\"", validationError.Tag(), validationError.Value()),
			})
		}
		Write(ctx, rw, http.StatusBadRequest, chronosdk.Response{
			Message: "Validation failed.",
			Errors:  apiErrors,
		})
		return false
	}
	if err != nil {
		InternalServerError(ctx, rw, err)
		return false
	}
	return true
}

// ResourceNotFound writes the generic 404 response.
func ResourceNotFound(ctx context.Context, rw http.ResponseWriter) {
	Write(ctx, rw, http.StatusNotFound, chronosdk.Response{
		Message: "Resource not found or you do not have access to this resource.",
	})
}

// Forbidden writes the generic 403 response.
func Forbidden(ctx context.Context, rw http.ResponseWriter) {
	Write(ctx, rw, http.StatusForbidden, chronosdk.Response{
		Message: "Forbidden.",
	})
}

// InternalServerError writes a 500 carrying err's message.
func InternalServerError(ctx context.Context, rw http.ResponseWriter, err error) {
	var detail string
	if err != nil {
		detail = err.Error()
	}
	Write(ctx, rw, http.StatusInternalServerError, chronosdk.Response{
		Message: "An internal server error occurred.",
		Detail:  detail,
	})
}
