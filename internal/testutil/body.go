package testutil

import (
	"bytes"
	"io"
	"net/http"
)

// readAndRestore reads the request body and puts an identical reader back.
func readAndRestore(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, err
}
