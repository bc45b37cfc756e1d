package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/tjfontaine/itsm-client/internal/config"
	"github.com/tjfontaine/itsm-client/pkg/itsm"
)

type env struct {
	client *itsm.Client
	cfg    *config.Config
	out    io.Writer
}

type command struct {
	run func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"login":    {run: runLogin},
	"logout":   {run: runLogout},
	"status":   {run: runStatus},
	"request":  {run: runRequest},
	"upload":   {run: runUpload},
	"download": {run: runDownload},
}

func newFlagSet(name, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: itsmctl %s\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func runLogin(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("login", "login [--username u] [--password p] [--tenant code]")
	username := fs.String("username", e.cfg.Auth.Username, "account name")
	password := fs.String("password", e.cfg.Auth.Password, "password (default: auth.password or ITSM_PASSWORD)")
	tenant := fs.String("tenant", e.cfg.Auth.TenantCode, "tenant code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("ITSM_PASSWORD")
	}
	if *username == "" || *password == "" {
		return fmt.Errorf("username and password are required")
	}

	result, err := e.client.Session().Login(ctx, *username, *password, *tenant)
	if err != nil {
		return err
	}
	tenantCode := ""
	if result.Tenant != nil {
		tenantCode = result.Tenant.Code
	}
	fmt.Fprintf(e.out, "logged in as %s (tenant %s)\n", result.User.Username, tenantCode)
	return nil
}

func runLogout(_ context.Context, e *env, _ []string) error {
	e.client.Session().Logout()
	fmt.Fprintln(e.out, "logged out")
	return nil
}

func runStatus(_ context.Context, e *env, _ []string) error {
	creds := e.client.Credentials().Get()
	if !creds.HasAccessToken() {
		fmt.Fprintln(e.out, "not logged in")
		return nil
	}
	fmt.Fprintf(e.out, "api:     %s\n", e.cfg.API.BaseURL)
	fmt.Fprintf(e.out, "tenant:  %d (%s)\n", creds.TenantID, creds.TenantCode)
	if exp, ok := e.client.Credentials().AccessTokenExpiry(); ok {
		fmt.Fprintf(e.out, "expires: %s\n", exp.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(e.out, "refresh: %t\n", creds.HasRefreshToken())
	return nil
}

func runRequest(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("request", "request METHOD PATH [--data json] [--query k=v]...")
	data := fs.String("data", "", "JSON request body in application case")
	query := fs.StringArray("query", nil, "query parameter k=v (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("request needs METHOD and PATH")
	}

	req := &itsm.Request{
		Method: strings.ToUpper(fs.Arg(0)),
		Path:   fs.Arg(1),
	}
	q, err := parsePairs(*query)
	if err != nil {
		return err
	}
	for k, v := range q {
		if req.Query == nil {
			req.Query = map[string][]string{}
		}
		req.Query.Set(k, v)
	}
	if *data != "" {
		var body any
		if err := json.Unmarshal([]byte(*data), &body); err != nil {
			return fmt.Errorf("invalid --data: %w", err)
		}
		req.Body = body
	}

	resp, err := e.client.Pipeline().Do(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(e.out, resp.Data)
}

func runUpload(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("upload", "upload PATH FILE [--field k=v]...")
	fields := fs.StringArray("field", nil, "form field k=v (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("upload needs PATH and FILE")
	}

	f, err := os.Open(fs.Arg(1))
	if err != nil {
		return err
	}
	defer f.Close()

	upload, err := newUpload(filepath.Base(fs.Arg(1)), f)
	if err != nil {
		return err
	}
	if upload.Fields, err = parsePairs(*fields); err != nil {
		return err
	}

	last := -1
	resp, err := e.client.Pipeline().Upload(ctx, fs.Arg(0), upload, func(p itsm.Progress) {
		if pct := p.Percent(); pct != last {
			last = pct
			fmt.Fprintf(os.Stderr, "\ruploading %3d%%", pct)
		}
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	return printJSON(e.out, resp.Data)
}

func runDownload(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("download", "download PATH [--out file] [--query k=v]...")
	out := fs.StringP("out", "o", "", "write to file instead of stdout")
	query := fs.StringArray("query", nil, "query parameter k=v (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("download needs PATH")
	}

	q, err := parsePairs(*query)
	if err != nil {
		return err
	}
	params := make(map[string][]string, len(q))
	for k, v := range q {
		params[k] = []string{v}
	}

	body, err := e.client.Pipeline().Download(ctx, fs.Arg(0), params)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = e.out.Write(body)
		return err
	}
	if err := os.WriteFile(*out, body, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d bytes to %s\n", len(body), *out)
	return nil
}

func newUpload(name string, r io.Reader) (*itsm.Upload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return &itsm.Upload{Files: []itsm.File{{
		Field:       "file",
		Name:        name,
		ContentType: http.DetectContentType(data),
		Data:        data,
	}}}, nil
}

func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out[k] = v
	}
	return out, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
