package recognition

import (
	"fmt"
	"log/slog"
)

// BackendConfig is the per-backend construction configuration, as
// opposed to credentials: model or engine variant, local endpoint,
// recognition languages.
type BackendConfig struct {
	Model     string
	Endpoint  string
	Languages []string
}

// registration couples a backend's descriptor template with its
// constructor and recommended default options.
type registration struct {
	template Descriptor
	build    func(cfg BackendConfig) Backend
	defaults Options
}

// Registry is the static catalogue of known backend kinds. It is the
// single place backend-specific construction knowledge lives; the
// orchestrator never sees implementation details.
type Registry struct {
	names   []string
	entries map[string]registration
}

// NewRegistry returns the registry of all built-in backends. The
// registration order doubles as the default trust order for the
// orchestrator's remaining-backends phase.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]registration)}
	r.register(func(cfg BackendConfig) Backend { return NewGemini(cfg) }, NewGemini(BackendConfig{}).Describe(), Options{})
	r.register(func(cfg BackendConfig) Backend { return NewVision(cfg) }, NewVision(BackendConfig{}).Describe(), Options{})
	r.register(func(cfg BackendConfig) Backend { return NewAzure(cfg) }, NewAzure(BackendConfig{}).Describe(), Options{DetectOrientation: true})
	r.register(func(cfg BackendConfig) Backend { return NewOllama(cfg) }, NewOllama(BackendConfig{}).Describe(), Options{})
	r.register(func(cfg BackendConfig) Backend { return NewTesseract(cfg) }, NewTesseract(BackendConfig{}).Describe(), Options{Language: "deu"})
	return r
}

func (r *Registry) register(build func(cfg BackendConfig) Backend, template Descriptor, defaults Options) {
	r.names = append(r.names, template.Name)
	r.entries[template.Name] = registration{template: template, build: build, defaults: defaults}
}

// Names returns the registered backend names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// ListAvailable returns the descriptor of every known backend, in
// registration order.
func (r *Registry) ListAvailable() []Descriptor {
	descriptors := make([]Descriptor, 0, len(r.names))
	for _, name := range r.names {
		descriptors = append(descriptors, r.entries[name].template)
	}
	return descriptors
}

// DefaultOptions returns the recommended per-call options for a
// backend, zero options for an unknown name.
func (r *Registry) DefaultOptions(name string) Options {
	return r.entries[name].defaults
}

// Create constructs and initializes one backend. It fails with
// UnavailableError when the name is unknown or the backend rejects
// the credentials.
func (r *Registry) Create(name string, cfg BackendConfig, creds Credentials) (Backend, error) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, &UnavailableError{Name: name, Reason: "unknown backend name"}
	}

	backend := entry.build(cfg)
	if !backend.Initialize(creds) {
		return nil, &UnavailableError{
			Name:   name,
			Reason: fmt.Sprintf("initialization failed: missing or invalid %s credentials", entry.template.CredentialShape),
		}
	}
	return backend, nil
}

// CreateFailure records one backend that could not be constructed
// during a batch create.
type CreateFailure struct {
	Name string
	Err  error
}

// CreateMany constructs the named backends best-effort: a failure for
// one backend is recorded and does not abort the others.
func (r *Registry) CreateMany(names []string, cfg map[string]BackendConfig, creds map[string]Credentials) (map[string]Backend, []CreateFailure) {
	backends := make(map[string]Backend, len(names))
	var failures []CreateFailure

	for _, name := range names {
		backend, err := r.Create(name, cfg[name], creds[name])
		if err != nil {
			slog.Warn("Skipping unavailable backend", "backend", name, "error", err)
			failures = append(failures, CreateFailure{Name: name, Err: err})
			continue
		}
		backends[name] = backend
	}
	return backends, failures
}
