// Package integrations talks to source code hosting providers on behalf of
// an organization's installed integrations
package integrations

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/conduit-lang/metricsd/internal/models"
)

// ErrNoIntegration is returned for code mappings without an integration
var ErrNoIntegration = errors.New("No associated integration")

// ErrUnknownProvider is returned when no provider is registered for an
// integration
var ErrUnknownProvider = errors.New("unknown integration provider")

// CodeownerFile is a CODEOWNERS file fetched from a repository
type CodeownerFile struct {
	Raw      string `json:"raw"`
	Filepath string `json:"filepath"`
	HTMLURL  string `json:"html_url"`
}

// Installation is an integration installed for one organization
type Installation interface {
	// GetCodeownerFile returns the CODEOWNERS file of repo at ref, or nil
	// if the repository has none
	GetCodeownerFile(ctx context.Context, repo, ref string) (*CodeownerFile, error)
}

// Provider creates installations of one integration provider
type Provider func(integration models.Integration, orgID int64) (Installation, error)

// Registry maps provider names to providers. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider, replacing any previous one of the same name
func (r *Registry) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
}

// Installation returns the installation of an organization's integration
func (r *Registry) Installation(oi *models.OrganizationIntegration) (Installation, error) {
	r.mu.RLock()
	provider, ok := r.providers[oi.Integration.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, oi.Integration.Provider)
	}
	return provider(oi.Integration, oi.OrganizationID)
}

// GetCodeownerContents fetches the CODEOWNERS file of a code mapping's
// repository on its default branch
func (r *Registry) GetCodeownerContents(ctx context.Context, cm *models.CodeMapping) (*CodeownerFile, error) {
	if cm.OrganizationIntegration == nil {
		return nil, ErrNoIntegration
	}

	install, err := r.Installation(cm.OrganizationIntegration)
	if err != nil {
		return nil, err
	}
	return install.GetCodeownerFile(ctx, cm.Repository, cm.DefaultBranch)
}
