package infra

import (
	"context"
	"fmt"
)

// MessageInjector satisfies probe.Injector by piping the message into the
// downstream container's local ingress port, from where Envoy carries it
// through the proxied path.
type MessageInjector struct {
	exec      Execer
	container string
	port      int
}

func NewMessageInjector(exec Execer, container string, port int) *MessageInjector {
	return &MessageInjector{exec: exec, container: container, port: port}
}

func (i *MessageInjector) Inject(_ context.Context, message string) error {
	cmd := []string{"sh", "-c", fmt.Sprintf("echo %s | socat -T 3 - TCP:127.0.0.1:%d", message, i.port)}
	if _, err := i.exec.Exec(i.container, cmd); err != nil {
		return fmt.Errorf("injecting into %s port %d: %w", i.container, i.port, err)
	}
	return nil
}

// SinkObserver satisfies probe.Observer by reading and truncating the
// upstream listener's sink file in one shot. Truncation is what makes
// repeated probe attempts unambiguous.
type SinkObserver struct {
	exec      Execer
	container string
	sinkPath  string
}

func NewSinkObserver(exec Execer, container, sinkPath string) *SinkObserver {
	return &SinkObserver{exec: exec, container: container, sinkPath: sinkPath}
}

func (o *SinkObserver) Drain(_ context.Context) (string, error) {
	cmd := []string{"sh", "-c", fmt.Sprintf("cat %s 2>/dev/null; : > %s", o.sinkPath, o.sinkPath)}
	out, err := o.exec.Exec(o.container, cmd)
	if err != nil {
		return "", fmt.Errorf("draining %s in %s: %w", o.sinkPath, o.container, err)
	}
	return out, nil
}
