// Package runner sequences the compatibility run: for each accepted release
// it builds the test image, brings up the proxied environment, verifies
// delivery in both transport modes and tears the per-release pieces down.
//
// Shared infrastructure (the identity server and the workload registrations
// made against it) is started once before the first release and stopped once
// at the end; per-release teardown never touches it, so iterations avoid the
// expensive re-bootstrap.
//
// Any failure is fatal to the whole run: a broken build pipeline or a
// connectivity regression on one release is assumed to affect the rest.
package runner

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spire-contrib/envoy-compat/internal/catalog"
	"github.com/spire-contrib/envoy-compat/internal/probe"
	srvErrors "github.com/spire-contrib/envoy-compat/pkg/errors"
)

// Builder produces the per-release test image.
type Builder interface {
	Build(ctx context.Context, release catalog.AcceptedRelease) error
}

// Environment manages the container lifecycles. Shared infrastructure lives
// for the whole run; the proxied pair is created and destroyed per release.
type Environment interface {
	StartShared(ctx context.Context) error
	StopShared(ctx context.Context) error
	StartRelease(ctx context.Context, release catalog.AcceptedRelease) error
	StopRelease(ctx context.Context, release catalog.AcceptedRelease) error
}

// Registrar registers the workload identities against the shared identity
// server. Called once, after StartShared.
type Registrar interface {
	Register(ctx context.Context) error
}

// ConnectivityProbe runs one bounded-retry delivery check.
type ConnectivityProbe interface {
	Run(ctx context.Context, message string) (probe.Result, error)
}

// Mode is a transport mode under test. Both must pass for a release to pass.
type Mode string

const (
	ModeMTLS Mode = "mtls"
	ModeTLS  Mode = "tls"
)

// Message returns the signal injected for the mode. Distinct messages keep a
// delivery on one listener from ever satisfying the other mode's check.
func (m Mode) Message() string {
	if m == ModeMTLS {
		return "HELLO_MTLS"
	}
	return "HELLO_TLS"
}

// Outcome aggregates the two transport-mode probe results for one release.
// It is logged and discarded; the run itself is binary pass/fail.
type Outcome struct {
	Release catalog.AcceptedRelease
	MTLS    probe.Result
	TLS     probe.Result
}

func (o Outcome) Passed() bool {
	return o.MTLS.Delivered && o.TLS.Delivered
}

// Runner drives the release iterations strictly sequentially.
type Runner struct {
	builder   Builder
	env       Environment
	registrar Registrar
	probes    map[Mode]ConnectivityProbe
	runID     string
}

func New(builder Builder, env Environment, registrar Registrar, probes map[Mode]ConnectivityProbe) *Runner {
	return &Runner{
		builder:   builder,
		env:       env,
		registrar: registrar,
		probes:    probes,
		runID:     uuid.NewString(),
	}
}

// Run processes every accepted release in order, failing fast on the first
// fatal condition. An empty release list is itself fatal: nothing to test.
func (r *Runner) Run(ctx context.Context, releases []catalog.AcceptedRelease) error {
	if len(releases) == 0 {
		return srvErrors.NewNoEligibleReleaseError("", 0)
	}

	log := zap.S().With("run_id", r.runID)
	log.Infow("starting compatibility run", "releases", len(releases))

	if err := r.env.StartShared(ctx); err != nil {
		return fmt.Errorf("starting shared infrastructure: %w", err)
	}
	defer func() {
		if err := r.env.StopShared(context.WithoutCancel(ctx)); err != nil {
			log.Warnw("stopping shared infrastructure", "error", err)
		}
	}()

	if err := r.registrar.Register(ctx); err != nil {
		return fmt.Errorf("registering workload identities: %w", err)
	}

	outcomes := make([]Outcome, 0, len(releases))
	for _, release := range releases {
		outcome, err := r.runRelease(ctx, release)
		if err != nil {
			return err
		}
		log.Infow("release passed",
			"release", release.Version,
			"mtls_attempts", outcome.MTLS.Attempts,
			"tls_attempts", outcome.TLS.Attempts)
		outcomes = append(outcomes, outcome)
	}

	r.printSummary(outcomes)
	return nil
}

// runRelease walks one release through build, bring-up, both probes and
// per-release teardown. On a probe failure the containers are left running
// for inspection; the shared teardown still happens in Run.
func (r *Runner) runRelease(ctx context.Context, release catalog.AcceptedRelease) (Outcome, error) {
	log := zap.S().With("run_id", r.runID, "release", release.Version.String())

	log.Infow("building test image", "artifact_tag", release.ArtifactTag)
	if err := r.builder.Build(ctx, release); err != nil {
		return Outcome{}, srvErrors.NewBuildFailedError(release.Version.String(), err)
	}

	log.Info("starting proxied environment")
	if err := r.env.StartRelease(ctx, release); err != nil {
		return Outcome{}, fmt.Errorf("starting environment for release %s: %w", release.Version, err)
	}

	outcome := Outcome{Release: release}
	for _, mode := range []Mode{ModeMTLS, ModeTLS} {
		log.Infow("probing connectivity", "mode", mode)
		result, err := r.probes[mode].Run(ctx, mode.Message())
		if err != nil {
			log.Warnw("probe failed, leaving release containers up for inspection", "mode", mode)
			return Outcome{}, srvErrors.NewProbeExhaustedError(release.Version.String(), string(mode), result.Attempts, err)
		}
		switch mode {
		case ModeMTLS:
			outcome.MTLS = result
		case ModeTLS:
			outcome.TLS = result
		}
	}

	if err := r.env.StopRelease(ctx, release); err != nil {
		return Outcome{}, fmt.Errorf("tearing down release %s: %w", release.Version, err)
	}
	return outcome, nil
}

func (r *Runner) printSummary(outcomes []Outcome) {
	bold := color.New(color.Bold)
	pass := color.New(color.FgGreen)

	bold.Printf("\ncompatibility run %s: %d release(s)\n", r.runID, len(outcomes))
	for _, o := range outcomes {
		pass.Printf("  PASS %-8s", o.Release.Version)
		fmt.Printf("  mtls attempt %d, tls attempt %d\n", o.MTLS.Attempts, o.TLS.Attempts)
	}
}
