package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spire-contrib/envoy-compat/internal/version"
	srvErrors "github.com/spire-contrib/envoy-compat/pkg/errors"
)

// AcceptedRelease is a release family with a confirmed published artifact.
// Instances are created once by the filter and never mutated.
type AcceptedRelease struct {
	Version     version.Version
	ArtifactTag string
}

// ArtifactTag returns the registry naming convention for a family's
// prebuilt test image.
func ArtifactTag(v version.Version) string {
	return v.String() + "-latest"
}

// ExistenceProber checks whether the artifact registry serves a given tag.
type ExistenceProber interface {
	Exists(ctx context.Context, tag string) (bool, error)
}

// Registry probes the artifact registry over HTTP: 200 means the tag is
// published, 404 means publication lag, anything else is a hard failure.
type Registry struct {
	baseURL    string
	httpClient *http.Client
}

func NewRegistry(baseURL string) *Registry {
	return &Registry{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *Registry) Exists(ctx context.Context, tag string) (bool, error) {
	url := fmt.Sprintf("%s/%s", r.baseURL, tag)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("probing artifact tag %s: %w", tag, err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("probing artifact tag %s: %w", tag, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("probing artifact tag %s: unexpected status %s", tag, resp.Status)
	}
}

// Filter walks the candidate set newest to oldest and keeps the families
// whose artifact is actually published. Iteration halts at the floor version
// inclusive: the floor is probed and appended if available, nothing older is
// ever considered.
type Filter struct {
	registry ExistenceProber
	floor    version.Version
}

func NewFilter(registry ExistenceProber, floor version.Version) *Filter {
	return &Filter{registry: registry, floor: floor}
}

// Accept returns the accepted releases newest first. An empty result after
// exhausting the candidates is fatal: there is nothing to test.
func (f *Filter) Accept(ctx context.Context, candidates []version.Version) ([]AcceptedRelease, error) {
	accepted := []AcceptedRelease{}
	probed := 0

	for _, v := range candidates {
		if v.Older(f.floor) {
			break
		}

		probed++
		tag := ArtifactTag(v)
		ok, err := f.registry.Exists(ctx, tag)
		if err != nil {
			return nil, err
		}
		if ok {
			accepted = append(accepted, AcceptedRelease{Version: v, ArtifactTag: tag})
		} else {
			// Publication lag: the release exists upstream but its test
			// artifact has not been pushed yet. Skip, don't fail.
			zap.S().Infow("artifact not published, skipping release", "release", v, "tag", tag)
		}

		if v.Equal(f.floor) {
			break
		}
	}

	if len(accepted) == 0 {
		return nil, srvErrors.NewNoEligibleReleaseError(f.floor.String(), probed)
	}
	return accepted, nil
}
