package internal

import (
	"github.com/starford/fehu/internal/catalog"
	"github.com/starford/fehu/internal/downloader"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	catalog   catalog.Client
	transport downloader.Transport
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithCatalog overrides the catalog client (used in tests).
func WithCatalog(c catalog.Client) Option {
	return func(a *application) {
		a.catalog = c
	}
}

// WithTransport overrides the download transport (used in tests).
func WithTransport(t downloader.Transport) Option {
	return func(a *application) {
		a.transport = t
	}
}
