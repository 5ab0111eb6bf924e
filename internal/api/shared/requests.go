package shared

import (
	"encoding/json"
	"net/http"
)

// maxBodyBytes caps request bodies. Submissions reference already-uploaded
// objects, so no legitimate request body comes close to this.
const maxBodyBytes = 1 << 20

// DecodeJSON decodes the request body into v, rejecting oversized bodies.
func DecodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}
