// Package errors defines the typed failure conditions of a compatibility run.
//
// The taxonomy separates fatal conditions (catalog unreachable, no eligible
// release, broken image build, exhausted connectivity probe) from the one
// recoverable condition, an unpublished artifact, which is handled as a skip
// inside the availability filter and never surfaces as an error value.
package errors

import (
	"errors"
	"fmt"
)

// CatalogUnavailableError indicates the release catalog could not be fetched.
// The run aborts without retrying; the catalog is a hard prerequisite.
type CatalogUnavailableError struct {
	URL string
	Err error
}

func NewCatalogUnavailableError(url string, err error) *CatalogUnavailableError {
	return &CatalogUnavailableError{URL: url, Err: err}
}

func (e *CatalogUnavailableError) Error() string {
	return fmt.Sprintf("release catalog %s unavailable: %v", e.URL, e.Err)
}

func (e *CatalogUnavailableError) Unwrap() error {
	return e.Err
}

func IsCatalogUnavailableError(err error) bool {
	var target *CatalogUnavailableError
	return errors.As(err, &target)
}

// NoEligibleReleaseError indicates the catalog was reachable but no candidate
// release had a published test artifact. Distinct from CatalogUnavailableError
// so the failing stage is identifiable from the exit message.
type NoEligibleReleaseError struct {
	Floor  string
	Probed int
}

func NewNoEligibleReleaseError(floor string, probed int) *NoEligibleReleaseError {
	return &NoEligibleReleaseError{Floor: floor, Probed: probed}
}

func (e *NoEligibleReleaseError) Error() string {
	if e.Probed == 0 {
		return "no testable release: candidate set is empty"
	}
	return fmt.Sprintf("no testable release: probed %d candidates down to floor %s", e.Probed, e.Floor)
}

func IsNoEligibleReleaseError(err error) bool {
	var target *NoEligibleReleaseError
	return errors.As(err, &target)
}

// BuildFailedError indicates the per-release test image could not be built.
// A broken build pipeline is assumed to affect every remaining release, so
// this aborts the whole run, not just the current iteration.
type BuildFailedError struct {
	Release string
	Err     error
}

func NewBuildFailedError(release string, err error) *BuildFailedError {
	return &BuildFailedError{Release: release, Err: err}
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("building test image for release %s: %v", e.Release, e.Err)
}

func (e *BuildFailedError) Unwrap() error {
	return e.Err
}

func IsBuildFailedError(err error) bool {
	var target *BuildFailedError
	return errors.As(err, &target)
}

// ProbeExhaustedError indicates a connectivity probe used its whole attempt
// budget without observing delivery. Older releases are assumed equally
// likely to expose the same regression, so the run stops here.
type ProbeExhaustedError struct {
	Release  string
	Mode     string
	Attempts uint
	Err      error
}

func NewProbeExhaustedError(release, mode string, attempts uint, err error) *ProbeExhaustedError {
	return &ProbeExhaustedError{Release: release, Mode: mode, Attempts: attempts, Err: err}
}

func (e *ProbeExhaustedError) Error() string {
	return fmt.Sprintf("connectivity probe for release %s (%s) exhausted after %d attempts: %v",
		e.Release, e.Mode, e.Attempts, e.Err)
}

func (e *ProbeExhaustedError) Unwrap() error {
	return e.Err
}

func IsProbeExhaustedError(err error) bool {
	var target *ProbeExhaustedError
	return errors.As(err, &target)
}
