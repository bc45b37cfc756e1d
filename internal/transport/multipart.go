package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"sync"

	"github.com/tjfontaine/itsm-client/internal/core/domain"
)

// Multipart sends *domain.Upload bodies as multipart/form-data and reports
// byte-level upload progress.
type Multipart struct {
	client *http.Client
}

// NewMultipart creates a multipart transport. A nil client uses http.DefaultClient.
func NewMultipart(client *http.Client) *Multipart {
	if client == nil {
		client = http.DefaultClient
	}
	return &Multipart{client: client}
}

func (t *Multipart) Name() string { return "multipart" }

func (t *Multipart) SupportsProgress() bool { return true }

func (t *Multipart) Send(ctx context.Context, call *Call) (*RawResponse, error) {
	upload, ok := call.Request.Upload()
	if !ok {
		return nil, fmt.Errorf("multipart transport needs an upload body for %s", call.Request)
	}

	payload, contentType, err := EncodeUpload(upload)
	if err != nil {
		return nil, err
	}

	var body io.Reader = bytes.NewReader(payload)
	if call.Request.OnUploadProgress != nil {
		body = &progressReader{
			r:     body,
			total: int64(len(payload)),
			fn:    call.Request.OnUploadProgress,
		}
	}

	req, err := newRequest(ctx, call, body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = int64(len(payload))
	// The boundary is generated here; a caller-supplied content type would
	// break it.
	req.Header.Set("Content-Type", contentType)
	if req.Header.Get("Accept") == "" && call.Request.Kind() == domain.ResponseJSON {
		req.Header.Set("Accept", "application/json")
	}
	return do(t.client, req)
}

// EncodeUpload renders upload as a multipart/form-data body and returns it
// with its content type.
func EncodeUpload(upload *domain.Upload) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(upload.Fields))
	for k := range upload.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, upload.Fields[k]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	for _, f := range upload.Files {
		field := f.Field
		if field == "" {
			field = "file"
		}
		var part io.Writer
		var err error
		if f.ContentType == "" {
			part, err = w.CreateFormFile(field, f.Name)
		} else {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.Name))
			h.Set("Content-Type", f.ContentType)
			part, err = w.CreatePart(h)
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to create part for %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write part for %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// progressReader reports cumulative bytes read to fn.
type progressReader struct {
	r      io.Reader
	total  int64
	fn     domain.ProgressFunc
	mu     sync.Mutex
	loaded int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.loaded += int64(n)
		progress := domain.Progress{Loaded: p.loaded, Total: p.total}
		p.mu.Unlock()
		p.fn(progress)
	}
	return n, err
}
