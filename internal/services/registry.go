package services

import (
	"github.com/fyrsmithlabs/rallyd/internal/intent"
	"github.com/fyrsmithlabs/rallyd/internal/notify"
	"github.com/fyrsmithlabs/rallyd/internal/roster"
	"github.com/fyrsmithlabs/rallyd/internal/session"
	"github.com/fyrsmithlabs/rallyd/internal/store"
)

// Registry provides access to all rallyd services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Store() store.Store
	Profiles() *roster.Profiles
	Extraction() *intent.Pipeline
	Classifier() *intent.Classifier
	Sessions() *session.Service
	Dispatcher() notify.Sender
}

// Options configures the registry with service instances.
type Options struct {
	Store      store.Store
	Profiles   *roster.Profiles
	Extraction *intent.Pipeline
	Classifier *intent.Classifier
	Sessions   *session.Service
	Dispatcher notify.Sender
}

// registry is the concrete implementation of Registry.
type registry struct {
	store      store.Store
	profiles   *roster.Profiles
	extraction *intent.Pipeline
	classifier *intent.Classifier
	sessions   *session.Service
	dispatcher notify.Sender
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		store:      opts.Store,
		profiles:   opts.Profiles,
		extraction: opts.Extraction,
		classifier: opts.Classifier,
		sessions:   opts.Sessions,
		dispatcher: opts.Dispatcher,
	}
}

func (r *registry) Store() store.Store             { return r.store }
func (r *registry) Profiles() *roster.Profiles     { return r.profiles }
func (r *registry) Extraction() *intent.Pipeline   { return r.extraction }
func (r *registry) Classifier() *intent.Classifier { return r.classifier }
func (r *registry) Sessions() *session.Service     { return r.sessions }
func (r *registry) Dispatcher() notify.Sender      { return r.dispatcher }
