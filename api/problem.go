// Package api implements the HTTP surface of spec §6: thin chi handlers
// that parse requests, call straight into service/multipart, and render
// responses. No business logic lives here.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/vaultdrive/vaultdrive/xfererr"
)

// Problem is an RFC 7807 "problem details" response.
type Problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// contentTypeProblemJSON is the Content-Type for RFC 7807 problem responses.
const contentTypeProblemJSON = "application/problem+json"

// writeProblem writes an RFC 7807 problem response.
func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

// writeError classifies err by xfererr.Kind and writes the matching
// problem response. Unclassified errors are reported as Internal.
func writeError(w http.ResponseWriter, err error) {
	kind := xfererr.KindOf(err)
	writeProblem(w, kind.HTTPStatus(), kind.String(), err.Error())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
