package infra_test

import (
	"context"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spire-contrib/envoy-compat/internal/infra"
)

// fakeExecer records exec calls and serves canned output per call.
type fakeExecer struct {
	calls  []string
	output []string
	err    error
}

func (f *fakeExecer) Exec(container string, cmd []string) (string, error) {
	f.calls = append(f.calls, container+": "+strings.Join(cmd, " "))
	if f.err != nil {
		return "", f.err
	}
	if len(f.output) == 0 {
		return "", nil
	}
	out := f.output[0]
	f.output = f.output[1:]
	return out, nil
}

var _ = Describe("MessageInjector", func() {
	It("should pipe the message into the mode's ingress port", func() {
		exec := &fakeExecer{}
		injector := infra.NewMessageInjector(exec, infra.DownstreamContainer, infra.MTLSIngressPort)

		Expect(injector.Inject(context.Background(), "HELLO_MTLS")).To(Succeed())
		Expect(exec.calls).To(HaveLen(1))
		Expect(exec.calls[0]).To(ContainSubstring("echo HELLO_MTLS"))
		Expect(exec.calls[0]).To(ContainSubstring("TCP:127.0.0.1:8001"))
	})

	It("should surface exec failures", func() {
		exec := &fakeExecer{err: fmt.Errorf("container not running")}
		injector := infra.NewMessageInjector(exec, infra.DownstreamContainer, infra.TLSIngressPort)

		Expect(injector.Inject(context.Background(), "HELLO_TLS")).NotTo(Succeed())
	})
})

var _ = Describe("SinkObserver", func() {
	It("should read and truncate the sink in one command", func() {
		exec := &fakeExecer{output: []string{"HELLO_MTLS\n"}}
		observer := infra.NewSinkObserver(exec, infra.UpstreamContainer, infra.MTLSSinkPath)

		out, err := observer.Drain(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("HELLO_MTLS"))
		Expect(exec.calls[0]).To(ContainSubstring("cat /tmp/mtls-sink.log"))
		Expect(exec.calls[0]).To(ContainSubstring(": > /tmp/mtls-sink.log"))
	})

	// Given the sink was drained once
	// When a second drain runs against an empty sink
	// Then it returns nothing: earlier output cannot satisfy a later attempt
	It("should return only fresh output on repeated drains", func() {
		exec := &fakeExecer{output: []string{"HELLO_TLS\n", ""}}
		observer := infra.NewSinkObserver(exec, infra.UpstreamContainer, infra.TLSSinkPath)

		first, err := observer.Drain(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(ContainSubstring("HELLO_TLS"))

		second, err := observer.Drain(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(BeEmpty())
	})
})
