package idempotency

import (
	"bytes"
	"net/http"
)

// bufferedResponse holds the handler's response until it has been stored.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) response() Response {
	resp := Response{Status: b.status, Headers: b.header.Clone()}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	if b.body.Len() > 0 {
		resp.Body = b.body.Bytes()
	}
	return resp
}

// writeResponse copies a captured or stored response onto w. Headers already on w
// are kept unless the response sets them too.
func writeResponse(w http.ResponseWriter, status int, header map[string][]string, body []byte) error {
	dst := w.Header()
	for name, values := range header {
		dst[name] = append([]string(nil), values...)
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}
