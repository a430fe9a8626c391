package remote

import (
	"fmt"
	"sort"

	"github.com/dyoshikawa/rulesync/pkg/source"
)

// Options configure a provider client.
type Options struct {
	// BaseURL overrides the provider's API endpoint. It must be HTTPS.
	BaseURL string
	// Token authenticates requests; empty means anonymous.
	Token string
}

// Factory builds a Client for one provider.
type Factory func(opts Options) (Client, error)

// registry tracks client factories for different providers
type registry map[source.Provider]Factory

var defaultRegistry = make(registry)

// RegisterProvider registers the factory for a provider.
// Note: this is NOT thread safe, and should only be called in init()
func RegisterProvider(p source.Provider, f Factory) error {
	if _, ok := defaultRegistry[p]; ok {
		return fmt.Errorf("failed to register provider %q: another factory already registered", p)
	}
	defaultRegistry[p] = f
	return nil
}

// RegisteredProviders returns the sorted names of all registered providers.
func RegisteredProviders() []string {
	names := make([]string, 0, len(defaultRegistry))
	for p := range defaultRegistry {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}

// UnsupportedProviderError is returned for providers the parser knows about
// but no client implements.
type UnsupportedProviderError struct {
	Provider source.Provider
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("provider %q is not supported yet", e.Provider)
}

// NewClient builds a client for p using its registered factory.
func NewClient(p source.Provider, opts Options) (Client, error) {
	f, ok := defaultRegistry[p]
	if !ok {
		return nil, &UnsupportedProviderError{Provider: p}
	}
	return f(opts)
}
