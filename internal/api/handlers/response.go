// Package handlers provides HTTP request handlers for the API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/go-chi/chi/v5/middleware"
	apierrors "github.com/narvanalabs/diagrams/internal/api/errors"
	apimiddleware "github.com/narvanalabs/diagrams/internal/api/middleware"
	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/pkg/logger"
)

// maxBodyBytes bounds request bodies; diagram documents are the largest payload.
const maxBodyBytes = 10 << 20

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	apierrors.WriteJSON(w, status, data)
}

// WriteNoContent writes a 204 No Content response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a 400 response for a body that could not be decoded.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.WriteErrorWithRequestID(w, apierrors.NewInvalidRequestError(message), middleware.GetReqID(r.Context()))
}

// WriteServiceError maps a service error to its HTTP response. Errors outside
// the domain taxonomy are logged and reported as internal errors.
func WriteServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error, action string) {
	requestID := middleware.GetReqID(r.Context())
	apiErr, known := apierrors.FromError(err)
	if !known {
		logger.WithTrace(r.Context(), log).Error("failed to "+action,
			"error", err,
			"request_id", requestID,
			"user_id", apimiddleware.GetUserID(r.Context()),
		)
	}
	apierrors.WriteErrorWithRequestID(w, apiErr, requestID)
}

// decodeJSON decodes the request body into v. An empty body leaves v untouched.
// A well-formed body with a field of the wrong JSON type is reported as a
// validation error on that field.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "non_field_errors"
		}
		return models.NewValidationError(field,
			fmt.Sprintf("Incorrect type. Expected %s, but got %s.", jsonKind(typeErr.Type), typeErr.Value))
	}
	return err
}

// writeDecodeError answers a body decodeJSON rejected: field type errors go
// out as validation errors, anything else as an invalid request.
func writeDecodeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		WriteServiceError(w, r, log, err, "decode request")
		return
	}
	WriteBadRequest(w, r, "invalid request body")
}

// jsonKind names the JSON type a Go type decodes from.
func jsonKind(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	}
	return "object"
}

// requireUser returns the authenticated user ID, writing a 401 when absent.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := apimiddleware.GetUserID(r.Context())
	if userID == "" {
		apierrors.WriteError(w, apierrors.NewUnauthorizedError("Authentication credentials were not provided."))
		return "", false
	}
	return userID, true
}
