package handlers

import (
	"dispatch-map-service/internal/jsonapi"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("encode response failed")
	}
}

type errorDocument struct {
	Errors []errorObject `json:"errors"`
}

type errorObject struct {
	Status string               `json:"status"`
	Code   string               `json:"code,omitempty"`
	Title  string               `json:"title,omitempty"`
	Detail string               `json:"detail,omitempty"`
	Source *jsonapi.ErrorSource `json:"source,omitempty"`
}

// writeErrors renders a JSON:API error document.
func writeErrors(w http.ResponseWriter, r *http.Request, status int, errs []jsonapi.ResponseError) {
	doc := errorDocument{Errors: make([]errorObject, 0, len(errs))}
	for _, e := range errs {
		doc.Errors = append(doc.Errors, errorObject{
			Status: strconv.Itoa(status),
			Code:   e.Code,
			Title:  e.Title,
			Detail: e.Detail,
			Source: e.Source,
		})
	}
	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("encode error response failed")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	writeErrors(w, r, status, []jsonapi.ResponseError{{
		Code:   code,
		Title:  http.StatusText(status),
		Detail: detail,
	}})
}

func writeFieldError(w http.ResponseWriter, r *http.Request, status int, pointer, detail string) {
	writeErrors(w, r, status, []jsonapi.ResponseError{{
		Code:   "invalid",
		Title:  http.StatusText(status),
		Detail: detail,
		Source: &jsonapi.ErrorSource{Pointer: pointer},
	}})
}

// decodeJSONStrict rejects unknown fields and trailing data.
func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

// WriteError lets middleware outside this package answer with the same error document.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	writeError(w, r, status, code, detail)
}
