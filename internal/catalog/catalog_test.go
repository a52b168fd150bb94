package catalog_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spire-contrib/envoy-compat/internal/catalog"
	"github.com/spire-contrib/envoy-compat/internal/version"
	srvErrors "github.com/spire-contrib/envoy-compat/pkg/errors"
)

// tagCatalog serves a Docker-Hub-shaped tag page for the given tag names.
func tagCatalog(tags ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[`)
		for i, t := range tags {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"name":%q}`, t)
		}
		fmt.Fprint(w, `]}`)
	}))
}

var _ = Describe("Resolver", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	// Given the catalog scenario tag list and MAX=5
	// When the candidate set is resolved
	// Then families are deduped and ordered descending
	It("should resolve the candidate window", func() {
		srv := tagCatalog("v1.21.3", "v1.21.0", "v1.20.1", "v1.19.0", "v1.13.0")
		defer srv.Close()

		resolver := catalog.NewResolver(catalog.NewClient(srv.URL, 100), 5)
		candidates, err := resolver.Resolve(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(Equal([]version.Version{
			{Major: 1, Minor: 21},
			{Major: 1, Minor: 20},
			{Major: 1, Minor: 19},
			{Major: 1, Minor: 13},
		}))
	})

	It("should truncate to the configured maximum", func() {
		srv := tagCatalog("v1.21.0", "v1.20.0", "v1.19.0", "v1.18.0")
		defer srv.Close()

		resolver := catalog.NewResolver(catalog.NewClient(srv.URL, 100), 2)
		candidates, err := resolver.Resolve(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(HaveLen(2))
		Expect(candidates[0]).To(Equal(version.Version{Major: 1, Minor: 21}))
	})

	It("should fail with CatalogUnavailableError when the fetch fails", func() {
		srv := tagCatalog("v1.21.0")
		srv.Close() // connection refused from here on

		resolver := catalog.NewResolver(catalog.NewClient(srv.URL, 100), 5)
		_, err := resolver.Resolve(ctx)

		Expect(err).To(HaveOccurred())
		Expect(srvErrors.IsCatalogUnavailableError(err)).To(BeTrue())
	})

	It("should fail with CatalogUnavailableError on a non-200 status", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		resolver := catalog.NewResolver(catalog.NewClient(srv.URL, 100), 5)
		_, err := resolver.Resolve(ctx)

		Expect(srvErrors.IsCatalogUnavailableError(err)).To(BeTrue())
	})

	// Given a catalog returning a malformed body
	// When the candidate set is resolved
	// Then the output is an empty (valid) candidate set, not a crash
	It("should treat a malformed catalog as empty", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "not json at all")
		}))
		defer srv.Close()

		resolver := catalog.NewResolver(catalog.NewClient(srv.URL, 100), 5)
		candidates, err := resolver.Resolve(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(BeEmpty())
	})

	It("should pass the page size to the catalog", func() {
		var gotPageSize string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPageSize = r.URL.Query().Get("page_size")
			fmt.Fprint(w, `{"results":[]}`)
		}))
		defer srv.Close()

		resolver := catalog.NewResolver(catalog.NewClient(srv.URL, 100), 5)
		_, err := resolver.Resolve(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(gotPageSize).To(Equal("100"))
	})
})
