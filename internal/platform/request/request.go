// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package requestutil provides utilities for extracting data from HTTP requests.

It abstracts away the underlying router's parameter extraction and common
body decoding patterns, ensuring consistent error handling and type safety.
*/
package requestutil

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taibuivan/historyatlas/internal/platform/ctxutil"
	"github.com/taibuivan/historyatlas/internal/platform/sec"
	"github.com/taibuivan/historyatlas/internal/platform/validate"
	"github.com/taibuivan/historyatlas/pkg/convert"
	"github.com/taibuivan/historyatlas/pkg/query"
)

// maxBodyBytes caps ingestion payloads; a batch of event envelopes fits well inside.
const maxBodyBytes = 8 << 20

/*
DecodeJSON reads the request body and decodes it into the target structure.

Parameters:
  - request: *http.Request
  - target: any (Pointer to the destination struct)

Returns:
  - error: validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(writer http.ResponseWriter, request *http.Request, target any) error {
	request.Body = http.MaxBytesReader(writer, request.Body, maxBodyBytes)
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
Param retrieves a named URL parameter from the request.
*/
func Param(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

/*
UUIDParam retrieves a named URL parameter and requires it to be a UUID.

Returns:
  - uuid.UUID: the parsed identifier
  - error: a VALIDATION_ERROR naming the parameter
*/
func UUIDParam(request *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(request, name))
	if err != nil {
		return uuid.Nil, validate.FieldError(name, "Must be a valid UUID")
	}
	return id, nil
}

/*
OptionalUUID reads a query parameter that may be absent but must be a UUID
when present.
*/
func OptionalUUID(request *http.Request, name string) (*uuid.UUID, error) {
	raw := request.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, validate.FieldError(name, "Must be a valid UUID")
	}
	return &id, nil
}

/*
UUIDList reads a comma separated (or repeated) query parameter of UUIDs.
Duplicates are dropped, first occurrence wins.

Returns:
  - []uuid.UUID: the identifiers in request order
  - error: a VALIDATION_ERROR naming the first malformed element
*/
func UUIDList(request *http.Request, name string) ([]uuid.UUID, error) {
	raw := query.Values(request.URL.Query()[name])

	validator := &validate.Validator{}
	validator.UUIDs(name, raw)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(raw))
	for i, value := range raw {
		ids[i] = uuid.MustParse(value)
	}
	return ids, nil
}

/*
IntQuery reads an optional integer query parameter, def when absent.
*/
func IntQuery(request *http.Request, name string, def int) (int, error) {
	value, ok := convert.ToIntD(request.URL.Query().Get(name), def)
	if !ok {
		return 0, validate.FieldError(name, "Must be an integer")
	}
	return value, nil
}

/*
FloatQuery reads a required float query parameter.
*/
func FloatQuery(request *http.Request, name string) (float64, error) {
	value, ok := convert.ToFloat64(request.URL.Query().Get(name))
	if !ok {
		return 0, validate.FieldError(name, "Must be a number")
	}
	return value, nil
}

/*
Claims extracts the authenticated user claims from the request context.

Returns nil if the request is not authenticated.
*/
func Claims(request *http.Request) *sec.AuthClaims {
	return ctxutil.GetAuthUser(request.Context())
}
