package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/langswap/pkg/provider/stt"
	"github.com/MrWong99/langswap/pkg/provider/translate"
	"github.com/MrWong99/langswap/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when a config entry names a backend
// nobody registered.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a backend from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factories is the name → constructor table for one backend kind.
type factories[P any] struct {
	kind string
	m    map[string]Factory[P]
}

func (f *factories[P]) create(e ProviderEntry) (P, error) {
	build, ok := f.m[e.Name]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, e.Name)
	}
	return build(e)
}

// Registry resolves the backend names used in the config file to
// constructors. Registering a name again replaces the earlier factory. It is
// safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	translators factories[translate.Provider]
	stt         factories[stt.Provider]
	tts         factories[tts.Provider]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		translators: factories[translate.Provider]{kind: "translate", m: map[string]Factory[translate.Provider]{}},
		stt:         factories[stt.Provider]{kind: "stt", m: map[string]Factory[stt.Provider]{}},
		tts:         factories[tts.Provider]{kind: "tts", m: map[string]Factory[tts.Provider]{}},
	}
}

func (r *Registry) RegisterTranslator(name string, f Factory[translate.Provider]) {
	r.mu.Lock()
	r.translators.m[name] = f
	r.mu.Unlock()
}

func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	r.stt.m[name] = f
	r.mu.Unlock()
}

func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) {
	r.mu.Lock()
	r.tts.m[name] = f
	r.mu.Unlock()
}

// CreateTranslator builds the translation backend named by e.Name.
func (r *Registry) CreateTranslator(e ProviderEntry) (translate.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.translators.create(e)
}

// CreateSTT builds the transcription backend named by e.Name.
func (r *Registry) CreateSTT(e ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(e)
}

// CreateTTS builds the synthesis backend named by e.Name.
func (r *Registry) CreateTTS(e ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create(e)
}

// Names lists the registered backends per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		r.translators.kind: slices.Sorted(maps.Keys(r.translators.m)),
		r.stt.kind:         slices.Sorted(maps.Keys(r.stt.m)),
		r.tts.kind:         slices.Sorted(maps.Keys(r.tts.m)),
	}
}
