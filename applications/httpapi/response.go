// Package httpapi exposes the tenant kernel's operations over HTTP, mounted
// on github.com/gorilla/mux and scoped to a tenant path segment.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
	"github.com/dot-do/entitykernel/infrastructure/httputil"
)

type successEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// writeJSON writes a {success:true, data, meta?} envelope with status 200.
func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONWithMeta(w, data, nil)
}

func writeJSONWithMeta(w http.ResponseWriter, data, meta interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(successEnvelope{Success: true, Data: data, Meta: meta})
}

func writeCreated(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(successEnvelope{Success: true, Data: data})
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps err to its Kind's HTTP status, falling back to 500 for
// anything that isn't a *errors.ServiceError.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if se := kerrors.GetServiceError(err); se != nil {
		httputil.WriteErrorResponse(w, r, se.HTTPStatus(), string(se.Kind), se.Message, se.Details)
		return
	}
	httputil.WriteErrorResponse(w, r, http.StatusInternalServerError, string(kerrors.KindInternal), err.Error(), nil)
}

// decodeJSON parses the request body into v, reporting a BadInput
// ServiceError. An empty body is not an error; v is left untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return kerrors.BadInput("invalid JSON body: " + err.Error())
	}
	return nil
}

// setVersionTag exposes the entity version as an entity tag on mutation
// responses.
func setVersionTag(w http.ResponseWriter, version int64) {
	w.Header().Set("ETag", `"`+strconv.FormatInt(version, 10)+`"`)
}

// versionPrecondition reads an If-Match entity tag as an expected-version
// precondition.
func versionPrecondition(r *http.Request) (int64, bool, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(strings.Trim(raw, `"`), 10, 64)
	if err != nil {
		return 0, false, kerrors.BadInput("If-Match must carry an integer version tag")
	}
	return v, true, nil
}

// project trims the JSON-marshaled value down to the dot-paths named by
// fields (empty fields returns value unmodified), extracting each path with
// gjson's document-path syntax rather than unmarshaling into Go structs.
func project(value interface{}, fields []string) (interface{}, error) {
	if len(fields) == 0 {
		return value, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(fields))
	for _, path := range fields {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		result := gjson.GetBytes(raw, path)
		if result.Exists() {
			out[path] = result.Value()
		}
	}
	return out, nil
}

func fieldsParam(r *http.Request) []string {
	raw := r.URL.Query().Get("fields")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
