package server

import (
	"encoding/json"
	"net/http"

	svcerrors "github.com/dans-labs/transformer/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeError renders any failure as a detail body with the mapped status.
// Causes stay in the log; the response carries the message only.
func writeError(w http.ResponseWriter, err error) {
	writeDetail(w, svcerrors.HTTPStatus(err), err.Error())
}

func writeText(w http.ResponseWriter, status int, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
