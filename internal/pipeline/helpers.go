package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sort"

	"github.com/tjfontaine/itsm-client/internal/apierr"
	"github.com/tjfontaine/itsm-client/internal/core/domain"
)

// Call sends req and decodes the response data into T.
func Call[T any](ctx context.Context, c *Client, req *domain.Request) (T, error) {
	var out T
	resp, err := c.Do(ctx, req)
	if err != nil {
		return out, err
	}
	if err := Decode(resp, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Decode stores the response data in target. Typed targets (structs and
// containers of structs) read the wire payload through their json tags;
// everything else receives the application-case data.
func Decode(resp *domain.Response, target any) error {
	if resp == nil || target == nil {
		return nil
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return apierr.ErrParse("decode target must be a non-nil pointer")
	}
	if b, ok := target.(*[]byte); ok {
		*b = resp.Blob
		return nil
	}

	var payload []byte
	if holdsStructs(rv.Elem().Type()) {
		payload = resp.Raw
	} else if resp.Data != nil {
		var err error
		payload, err = json.Marshal(resp.Data)
		if err != nil {
			return apierr.ErrParse("failed to re-encode response data").WithRequestID(resp.RequestID).WithCause(err)
		}
	}
	if len(payload) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return apierr.ErrParse(fmt.Sprintf("failed to decode response into %T", target)).
			WithRequestID(resp.RequestID).
			WithCause(err)
	}
	return nil
}

func holdsStructs(t reflect.Type) bool {
	for {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			t = t.Elem()
		case reflect.Map:
			t = t.Elem()
		case reflect.Struct:
			return true
		default:
			return false
		}
	}
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*domain.Response, error) {
	return c.Do(ctx, &domain.Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*domain.Response, error) {
	return c.Do(ctx, &domain.Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*domain.Response, error) {
	return c.Do(ctx, &domain.Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*domain.Response, error) {
	return c.Do(ctx, &domain.Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete issues a DELETE request. body may be nil.
func (c *Client) Delete(ctx context.Context, path string, body any) (*domain.Response, error) {
	return c.Do(ctx, &domain.Request{Method: http.MethodDelete, Path: path, Body: body})
}

// Upload posts a multipart form. onProgress may be nil.
func (c *Client) Upload(ctx context.Context, path string, upload *domain.Upload, onProgress domain.ProgressFunc) (*domain.Response, error) {
	if upload == nil {
		return nil, apierr.ErrParse("upload body required")
	}
	return c.Do(ctx, &domain.Request{
		Method:           http.MethodPost,
		Path:             path,
		Body:             upload,
		OnUploadProgress: onProgress,
	})
}

// Download fetches path as raw bytes.
func (c *Client) Download(ctx context.Context, path string, query url.Values) ([]byte, error) {
	resp, err := c.Do(ctx, &domain.Request{
		Method:       http.MethodGet,
		Path:         path,
		Query:        query,
		ResponseKind: domain.ResponseBlob,
	})
	if err != nil {
		return nil, err
	}
	return resp.Blob, nil
}

// BatchOperation posts {operation, data} to path.
func (c *Client) BatchOperation(ctx context.Context, path, operation string, data []any) (*domain.Response, error) {
	if data == nil {
		data = []any{}
	}
	return c.Post(ctx, path, map[string]any{
		"operation": operation,
		"data":      data,
	})
}

// PageParams are the list query parameters understood by ITSM list endpoints.
type PageParams struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
	Filters   map[string]any
}

// Values renders the parameters as a query string. Filters are sent as
// filters[key]=value; nil filter values are dropped.
func (p PageParams) Values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", fmt.Sprint(p.Page))
	}
	if p.PageSize > 0 {
		v.Set("pageSize", fmt.Sprint(p.PageSize))
	}
	if p.SortBy != "" {
		v.Set("sortBy", p.SortBy)
	}
	if p.SortOrder != "" {
		v.Set("sortOrder", p.SortOrder)
	}
	keys := make([]string, 0, len(p.Filters))
	for k := range p.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if val := p.Filters[k]; val != nil {
			v.Set("filters["+k+"]", fmt.Sprint(val))
		}
	}
	return v
}

// GetPaginated issues a GET with page, sort and filter parameters.
func (c *Client) GetPaginated(ctx context.Context, path string, params PageParams) (*domain.Response, error) {
	return c.Get(ctx, path, params.Values())
}

// Query converts a parameter map into url.Values, dropping nil values.
// Parameter names are sent as given.
func Query(params map[string]any) url.Values {
	v := url.Values{}
	for k, val := range params {
		if val == nil {
			continue
		}
		switch tv := val.(type) {
		case []string:
			for _, s := range tv {
				v.Add(k, s)
			}
		default:
			v.Set(k, fmt.Sprint(val))
		}
	}
	return v
}
