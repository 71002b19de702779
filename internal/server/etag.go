package server

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// etagFor returns a strong entity tag over the encoded body.
func etagFor(body []byte) string {
	sum := blake3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// matchesETag reports whether an If-None-Match header value covers tag.
func matchesETag(header, tag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == tag {
			return true
		}
	}
	return false
}

// writeJSONConditional writes v with an ETag, or 304 when the client
// already holds the same representation. Pollers of /task/{id} use this to
// skip unchanged bodies.
func writeJSONConditional(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, types.ErrorBody{
			Error: types.ErrorDetail{Code: "INTERNAL", Message: "internal error"},
		})
		return
	}
	tag := etagFor(body)
	w.Header().Set("ETag", tag)
	if inm := r.Header.Get("If-None-Match"); inm != "" && matchesETag(inm, tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}
