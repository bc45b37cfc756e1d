// Package itsm provides the public API for embedding the ITSM client.
// This is the stable API for external consumers.
package itsm

import (
	"context"

	"github.com/tjfontaine/itsm-client/internal/apierr"
	"github.com/tjfontaine/itsm-client/internal/config"
	"github.com/tjfontaine/itsm-client/internal/core/domain"
	"github.com/tjfontaine/itsm-client/internal/pipeline"
	"github.com/tjfontaine/itsm-client/internal/runtime"
)

// Client is the main entry point for talking to an ITSM API.
// See internal/runtime.Client for full documentation.
type Client = runtime.Client

// Option is a functional option for configuring a Client.
type Option = runtime.Option

// New creates a new Client with the given options.
// Example:
//
//	cfg, err := itsm.LoadConfig("itsm.yaml")
//	...
//	client, err := itsm.New(itsm.WithConfig(cfg))
var New = runtime.New

// LoadConfig reads itsm.yaml (or path) and ITSM_ environment overrides.
var LoadConfig = config.Load

// Configuration options
var (
	WithConfig         = runtime.WithConfig
	WithBaseURL        = runtime.WithBaseURL
	WithTimeout        = runtime.WithTimeout
	WithRefreshSkew    = runtime.WithRefreshSkew
	WithSessionExpired = runtime.WithSessionExpired

	// Storage
	WithSQLite        = runtime.WithSQLite
	WithMemoryStorage = runtime.WithMemoryStorage
	WithKVStore       = runtime.WithKVStore

	// Advanced options
	WithHTTPClient = runtime.WithHTTPClient
	WithTracing    = runtime.WithTracing
	WithLogger     = runtime.WithLogger
)

// Request and response types
type (
	Request      = domain.Request
	Response     = domain.Response
	Upload       = domain.Upload
	File         = domain.File
	Progress     = domain.Progress
	ResponseKind = domain.ResponseKind
	Credentials  = domain.Credentials
	PageParams   = pipeline.PageParams
)

const (
	ResponseJSON = domain.ResponseJSON
	ResponseBlob = domain.ResponseBlob
)

// Errors
type (
	Error     = apierr.APIError
	ErrorKind = apierr.Kind
)

const (
	KindNetwork  = apierr.KindNetwork
	KindTimeout  = apierr.KindTimeout
	KindAuth     = apierr.KindAuth
	KindBusiness = apierr.KindBusiness
	KindParse    = apierr.KindParse
)

var (
	IsAuth     = apierr.IsAuth
	IsTimeout  = apierr.IsTimeout
	IsBusiness = apierr.IsBusiness
	KindOf     = apierr.KindOf
)

// Call sends req through c and decodes the response data into T.
func Call[T any](ctx context.Context, c *Client, req *Request) (T, error) {
	return pipeline.Call[T](ctx, c.Pipeline(), req)
}
