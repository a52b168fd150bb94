package version_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spire-contrib/envoy-compat/internal/version"
)

var _ = Describe("Parse", func() {
	It("should strip tags to their release family", func() {
		v, err := version.Parse("v1.21.3")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(version.Version{Major: 1, Minor: 21}))
	})

	It("should accept tags without a patch component", func() {
		v, err := version.Parse("v1.13")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(version.Version{Major: 1, Minor: 13}))
	})

	// Given a pre-release tag in the catalog
	// When it is parsed
	// Then it is rejected so only final releases form families
	It("should reject pre-release suffixes", func() {
		_, err := version.Parse("v1.21.0-rc1")
		Expect(err).To(HaveOccurred())
	})

	It("should reject convenience tags", func() {
		_, err := version.Parse("v1.21-latest")
		Expect(err).To(HaveOccurred())

		_, err = version.Parse("latest")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Compare", func() {
	It("should order minors numerically, not lexicographically", func() {
		older := version.MustParse("v1.9")
		newer := version.MustParse("v1.10")

		Expect(older.Older(newer)).To(BeTrue())
		Expect(newer.Compare(older)).To(BeNumerically(">", 0))
	})

	It("should treat point releases of a family as equal", func() {
		Expect(version.MustParse("v1.21.0").Equal(version.MustParse("v1.21.3"))).To(BeTrue())
	})
})

var _ = Describe("Families", func() {
	// Given the raw tag list from the catalog scenario
	// When families are computed
	// Then duplicates collapse and ordering is descending
	It("should deduplicate and sort descending", func() {
		families := version.Families([]string{"v1.21.3", "v1.21.0", "v1.20.1", "v1.19.0", "v1.13.0"})

		Expect(families).To(Equal([]version.Version{
			{Major: 1, Minor: 21},
			{Major: 1, Minor: 20},
			{Major: 1, Minor: 19},
			{Major: 1, Minor: 13},
		}))
	})

	It("should never contain two entries with an equal family", func() {
		families := version.Families([]string{"v1.20.7", "v1.20.0", "v1.20.1"})
		Expect(families).To(HaveLen(1))
	})

	It("should drop unparsable tags instead of failing", func() {
		families := version.Families([]string{"latest", "v1.21.0-rc1", "v1.18.2", "dev"})
		Expect(families).To(Equal([]version.Version{{Major: 1, Minor: 18}}))
	})

	It("should sort v1.10 ahead of v1.9", func() {
		families := version.Families([]string{"v1.9.1", "v1.10.0"})
		Expect(families).To(Equal([]version.Version{
			{Major: 1, Minor: 10},
			{Major: 1, Minor: 9},
		}))
	})

	It("should return an empty set for an empty catalog", func() {
		Expect(version.Families(nil)).To(BeEmpty())
	})
})
