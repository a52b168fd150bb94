package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"go.uber.org/zap"

	"github.com/spire-contrib/envoy-compat/internal/catalog"
	"github.com/spire-contrib/envoy-compat/internal/config"
	"github.com/spire-contrib/envoy-compat/internal/spire"
)

const bootstrapFile = "bootstrap.crt"

// ContainerInfraManager implements the runner's Builder and Environment
// contracts on Podman. The identity server is shared infrastructure: it is
// brought up in StartShared, excluded from per-release teardown, and removed
// only in StopShared.
type ContainerInfraManager struct {
	runner   *PodmanRunner
	identity *spire.Client
	cfg      *config.Config

	bootstrapDir string
}

func NewContainerInfraManager(runner *PodmanRunner, identity *spire.Client, cfg *config.Config) (*ContainerInfraManager, error) {
	bootstrapDir, err := filepath.Abs(filepath.Join(cfg.BuildContext, "bootstrap"))
	if err != nil {
		return nil, fmt.Errorf("resolving bootstrap directory: %w", err)
	}
	return &ContainerInfraManager{
		runner:       runner,
		identity:     identity,
		cfg:          cfg,
		bootstrapDir: bootstrapDir,
	}, nil
}

// Build produces the per-release mashup image, tagged with the release
// family and parameterized with the registry artifact tag.
func (m *ContainerInfraManager) Build(_ context.Context, release catalog.AcceptedRelease) error {
	return m.runner.BuildImage(
		m.cfg.ContainerFile,
		m.cfg.BuildContext,
		mashupTag(release),
		map[string]string{"ENVOY_IMAGE_TAG": release.ArtifactTag},
	)
}

// StartShared brings up the test network and the identity server, waits for
// it to answer healthchecks, and writes the trust bundle where the per-release
// agents pick it up.
func (m *ContainerInfraManager) StartShared(ctx context.Context) error {
	if err := m.runner.EnsureNetwork(NetworkName); err != nil {
		return err
	}
	if err := m.runner.EnsureImage(m.cfg.ServerImage); err != nil {
		return err
	}

	confDir, err := filepath.Abs(filepath.Join(m.cfg.BuildContext, "server"))
	if err != nil {
		return fmt.Errorf("resolving server conf directory: %w", err)
	}

	err = m.runner.StartContainer(ContainerSpec{
		Name:    ServerContainer,
		Image:   m.cfg.ServerImage,
		Command: []string{"-config", "/opt/spire/conf/server/server.conf"},
		Network: NetworkName,
		Mounts: []specs.Mount{{
			Destination: "/opt/spire/conf/server",
			Source:      confDir,
			Type:        "bind",
			Options:     []string{"ro"},
		}},
	})
	if err != nil {
		return err
	}

	// The server needs a moment to open its API socket.
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, m.identity.Healthcheck()
	}, backoff.WithBackOff(backoff.NewConstantBackOff(time.Second)), backoff.WithMaxTries(30))
	if err != nil {
		return fmt.Errorf("waiting for identity server: %w", err)
	}

	bundle, err := m.identity.TrustBundle()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.bootstrapDir, 0o755); err != nil {
		return fmt.Errorf("creating bootstrap directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.bootstrapDir, bootstrapFile), []byte(bundle), 0o644); err != nil {
		return fmt.Errorf("writing trust bundle: %w", err)
	}

	zap.S().Infow("shared infrastructure up", "server", ServerContainer, "bootstrap_dir", m.bootstrapDir)
	return nil
}

// StopShared removes the identity server and the test network.
func (m *ContainerInfraManager) StopShared(context.Context) error {
	if m.cfg.KeepContainers {
		zap.S().Info("keep-containers set, leaving shared infrastructure running")
		return nil
	}
	if err := m.runner.StopContainer(ServerContainer); err != nil {
		return err
	}
	return m.runner.RemoveNetwork(NetworkName)
}

// StartRelease brings up the upstream listener and the downstream emitter
// from the release's mashup image. Both sides run an identity agent
// bootstrapped from the shared trust bundle.
func (m *ContainerInfraManager) StartRelease(_ context.Context, release catalog.AcceptedRelease) error {
	agentID := fmt.Sprintf("spiffe://%s/agent/node", m.cfg.TrustDomain)

	for _, side := range []struct {
		name string
		role string
	}{
		{UpstreamContainer, "upstream"},
		{DownstreamContainer, "downstream"},
	} {
		// Join tokens are single use, so each side attests with its own.
		token, err := m.identity.GenerateJoinToken(agentID)
		if err != nil {
			return err
		}
		err = m.runner.StartContainer(ContainerSpec{
			Name:  side.name,
			Image: mashupTag(release),
			Env: map[string]string{
				"ROLE":          side.role,
				"TRUST_DOMAIN":  m.cfg.TrustDomain,
				"SPIRE_SERVER":  ServerContainer + ":8081",
				"JOIN_TOKEN":    token,
				"MTLS_SINK":     MTLSSinkPath,
				"TLS_SINK":      TLSSinkPath,
				"MTLS_INGRESS":  fmt.Sprintf("%d", MTLSIngressPort),
				"TLS_INGRESS":   fmt.Sprintf("%d", TLSIngressPort),
				"UPSTREAM_HOST": UpstreamContainer,
			},
			Network: NetworkName,
			Mounts: []specs.Mount{{
				Destination: "/opt/spire/conf/agent/bootstrap",
				Source:      m.bootstrapDir,
				Type:        "bind",
				Options:     []string{"ro"},
			}},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// StopRelease removes only the per-release pair; the identity server keeps
// running for the next iteration.
func (m *ContainerInfraManager) StopRelease(_ context.Context, release catalog.AcceptedRelease) error {
	if m.cfg.KeepContainers {
		zap.S().Infow("keep-containers set, leaving release containers running", "release", release.Version)
		return nil
	}
	for _, name := range []string{DownstreamContainer, UpstreamContainer} {
		if err := m.runner.StopContainer(name); err != nil {
			return err
		}
	}
	return nil
}

func mashupTag(release catalog.AcceptedRelease) string {
	return fmt.Sprintf("%s:%s", MashupImage, release.Version)
}
