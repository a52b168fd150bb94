package errors_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	srvErrors "github.com/spire-contrib/envoy-compat/pkg/errors"
)

var _ = Describe("Error taxonomy", func() {
	It("should match typed errors through wrapping", func() {
		err := fmt.Errorf("resolving candidates: %w",
			srvErrors.NewCatalogUnavailableError("https://example.test/tags", fmt.Errorf("connection refused")))

		Expect(srvErrors.IsCatalogUnavailableError(err)).To(BeTrue())
		Expect(srvErrors.IsNoEligibleReleaseError(err)).To(BeFalse())
	})

	It("should keep the failure taxonomy disjoint", func() {
		build := srvErrors.NewBuildFailedError("v1.21", fmt.Errorf("missing base image"))
		probe := srvErrors.NewProbeExhaustedError("v1.21", "mtls", 15, fmt.Errorf("HELLO_MTLS not observed"))

		Expect(srvErrors.IsBuildFailedError(build)).To(BeTrue())
		Expect(srvErrors.IsProbeExhaustedError(build)).To(BeFalse())
		Expect(srvErrors.IsProbeExhaustedError(probe)).To(BeTrue())
		Expect(srvErrors.IsBuildFailedError(probe)).To(BeFalse())
	})

	It("should report the failing stage in the message", func() {
		err := srvErrors.NewNoEligibleReleaseError("v1.13", 5)
		Expect(err.Error()).To(ContainSubstring("no testable release"))
		Expect(err.Error()).To(ContainSubstring("v1.13"))
	})
})
