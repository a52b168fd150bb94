// Command envoy-compat validates the SPIRE Envoy integration against recent
// Envoy releases: it resolves the testable release window from the upstream
// tag catalog, keeps the releases with a published test artifact, and runs
// mTLS and TLS connectivity checks against each one in turn.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spire-contrib/envoy-compat/internal/catalog"
	"github.com/spire-contrib/envoy-compat/internal/config"
	"github.com/spire-contrib/envoy-compat/internal/infra"
	"github.com/spire-contrib/envoy-compat/internal/probe"
	"github.com/spire-contrib/envoy-compat/internal/runner"
	"github.com/spire-contrib/envoy-compat/internal/spire"
	"github.com/spire-contrib/envoy-compat/internal/version"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "envoy-compat",
		Short:         "Run Envoy release compatibility checks against SPIRE",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				log.Printf("invalid configuration: %v", err)
				return err
			}

			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				log.Printf("failed to initialize logger: %v", err)
				return err
			}
			zap.ReplaceGlobals(logger)
			defer logger.Sync()

			if err := run(cmd.Context(), cfg); err != nil {
				zap.S().Errorw("compatibility run failed", "error", err)
				return err
			}
			return nil
		},
	}

	defaults := config.Default()
	flags := cmd.Flags()
	flags.String("catalog-url", defaults.CatalogURL, "Release tag catalog endpoint")
	flags.Int("page-size", defaults.PageSize, "Catalog page size")
	flags.Int("max-releases", defaults.MaxReleases, "Maximum number of release families to test")
	flags.String("floor-version", defaults.FloorVersion, "Oldest release family to test (inclusive)")
	flags.String("registry-url", defaults.RegistryURL, "Artifact registry endpoint for existence probes")
	flags.String("podman-socket", defaults.PodmanSocket, "Podman service socket URI")
	flags.String("server-image", defaults.ServerImage, "Identity server image")
	flags.String("trust-domain", defaults.TrustDomain, "SPIFFE trust domain")
	flags.String("build-context", defaults.BuildContext, "Build context directory for the mashup image")
	flags.String("container-file", defaults.ContainerFile, "Containerfile for the mashup image")
	flags.Uint("probe-max-attempts", defaults.ProbeMaxAttempts, "Connectivity probe attempt budget")
	flags.Duration("probe-interval", defaults.ProbeInterval, "Delay between connectivity probe attempts")
	flags.Bool("keep-containers", defaults.KeepContainers, "Keep containers running after the run (debugging)")
	flags.String("log-level", defaults.LogLevel, "Log level")

	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(lvl)
	return logCfg.Build()
}

func run(ctx context.Context, cfg *config.Config) error {
	// Validated in config.Load.
	floor := version.MustParse(cfg.FloorVersion)

	resolver := catalog.NewResolver(catalog.NewClient(cfg.CatalogURL, cfg.PageSize), cfg.MaxReleases)
	candidates, err := resolver.Resolve(ctx)
	if err != nil {
		return err
	}

	filter := catalog.NewFilter(catalog.NewRegistry(cfg.RegistryURL), floor)
	accepted, err := filter.Accept(ctx, candidates)
	if err != nil {
		return err
	}

	pod, err := infra.NewPodmanRunner(cfg.PodmanSocket)
	if err != nil {
		return err
	}
	identity := spire.NewClient(pod, infra.ServerContainer, cfg.TrustDomain)
	manager, err := infra.NewContainerInfraManager(pod, identity, cfg)
	if err != nil {
		return err
	}

	probes := map[runner.Mode]runner.ConnectivityProbe{
		runner.ModeMTLS: probe.New(
			infra.NewMessageInjector(pod, infra.DownstreamContainer, infra.MTLSIngressPort),
			infra.NewSinkObserver(pod, infra.UpstreamContainer, infra.MTLSSinkPath),
			cfg.ProbeMaxAttempts, cfg.ProbeInterval),
		runner.ModeTLS: probe.New(
			infra.NewMessageInjector(pod, infra.DownstreamContainer, infra.TLSIngressPort),
			infra.NewSinkObserver(pod, infra.UpstreamContainer, infra.TLSSinkPath),
			cfg.ProbeMaxAttempts, cfg.ProbeInterval),
	}

	registrar := spire.NewRegistrar(identity, cfg.TrustDomain)
	return runner.New(manager, manager, registrar, probes).Run(ctx, accepted)
}
