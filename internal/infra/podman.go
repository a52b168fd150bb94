package infra

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	buildahDefine "github.com/containers/buildah/define"
	"github.com/containers/podman/v5/pkg/api/handlers"
	"github.com/containers/podman/v5/pkg/bindings"
	"github.com/containers/podman/v5/pkg/bindings/containers"
	"github.com/containers/podman/v5/pkg/bindings/images"
	"github.com/containers/podman/v5/pkg/bindings/network"
	"github.com/containers/podman/v5/pkg/domain/entities"
	"github.com/containers/podman/v5/pkg/specgen"
	dockerContainer "github.com/docker/docker/api/types/container"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	nettypes "go.podman.io/common/libnetwork/types"
	"go.uber.org/zap"
)

// PodmanRunner wraps the low-level Podman API bindings. The bindings carry
// their connection inside a context created at construction time, so the
// methods here do not take one.
type PodmanRunner struct {
	conn context.Context
}

// NewPodmanRunner connects to the Podman service on the given socket URI.
func NewPodmanRunner(socket string) (*PodmanRunner, error) {
	conn, err := bindings.NewConnection(context.Background(), socket)
	if err != nil {
		return nil, fmt.Errorf("connecting to podman socket %s: %w", socket, err)
	}
	return &PodmanRunner{conn: conn}, nil
}

// ContainerSpec is the subset of container options the runner needs.
type ContainerSpec struct {
	Name    string
	Image   string
	Command []string
	Env     map[string]string
	Network string
	Mounts  []specs.Mount
	Ports   []nettypes.PortMapping
}

// BuildImage builds a local image from the given Containerfile and context
// directory, blocking until the build finishes.
func (p *PodmanRunner) BuildImage(containerFile, contextDir, tag string, buildArgs map[string]string) error {
	opts := entities.BuildOptions{
		BuildOptions: buildahDefine.BuildOptions{
			ContextDirectory: contextDir,
			Output:           tag,
			Args:             buildArgs,
		},
	}

	zap.S().Infow("building image", "tag", tag, "containerfile", containerFile, "args", buildArgs)
	if _, err := images.Build(p.conn, []string{containerFile}, opts); err != nil {
		return fmt.Errorf("building image %s: %w", tag, err)
	}
	return nil
}

// EnsureImage pulls the image unless it is already present locally.
func (p *PodmanRunner) EnsureImage(ref string) error {
	exists, err := images.Exists(p.conn, ref, nil)
	if err != nil {
		return fmt.Errorf("checking image %s: %w", ref, err)
	}
	if exists {
		return nil
	}

	zap.S().Infow("pulling image", "ref", ref)
	if _, err := images.Pull(p.conn, ref, nil); err != nil {
		return fmt.Errorf("pulling image %s: %w", ref, err)
	}
	return nil
}

// EnsureNetwork creates the named network if it does not exist yet.
func (p *PodmanRunner) EnsureNetwork(name string) error {
	exists, err := network.Exists(p.conn, name, nil)
	if err != nil {
		return fmt.Errorf("checking network %s: %w", name, err)
	}
	if exists {
		return nil
	}

	if _, err := network.Create(p.conn, &nettypes.Network{Name: name}); err != nil {
		return fmt.Errorf("creating network %s: %w", name, err)
	}
	return nil
}

func (p *PodmanRunner) RemoveNetwork(name string) error {
	if _, err := network.Remove(p.conn, name, nil); err != nil {
		return fmt.Errorf("removing network %s: %w", name, err)
	}
	return nil
}

// StartContainer creates and starts a container from the spec.
func (p *PodmanRunner) StartContainer(spec ContainerSpec) error {
	s := specgen.NewSpecGenerator(spec.Image, false)
	s.Name = spec.Name
	s.Command = spec.Command
	s.Env = spec.Env
	s.Mounts = spec.Mounts
	s.PortMappings = spec.Ports
	if spec.Network != "" {
		s.Networks = map[string]nettypes.PerNetworkOptions{spec.Network: {}}
	}

	created, err := containers.CreateWithSpec(p.conn, s, nil)
	if err != nil {
		return fmt.Errorf("creating container %s: %w", spec.Name, err)
	}
	if err := containers.Start(p.conn, created.ID, nil); err != nil {
		return fmt.Errorf("starting container %s: %w", spec.Name, err)
	}

	zap.S().Infow("container started", "name", spec.Name, "image", spec.Image)
	return nil
}

// StopContainer stops and removes the named container; missing containers
// are not an error so teardown stays idempotent.
func (p *PodmanRunner) StopContainer(name string) error {
	exists, err := containers.Exists(p.conn, name, nil)
	if err != nil {
		return fmt.Errorf("checking container %s: %w", name, err)
	}
	if !exists {
		return nil
	}

	stopOpts := new(containers.StopOptions).WithTimeout(10)
	if err := containers.Stop(p.conn, name, stopOpts); err != nil {
		return fmt.Errorf("stopping container %s: %w", name, err)
	}

	rmOpts := new(containers.RemoveOptions).WithForce(true).WithVolumes(true)
	if _, err := containers.Remove(p.conn, name, rmOpts); err != nil {
		return fmt.Errorf("removing container %s: %w", name, err)
	}

	zap.S().Infow("container removed", "name", name)
	return nil
}

// Exec runs a command inside a running container and returns its stdout.
// A non-zero exit code is an error carrying the command's stderr.
func (p *PodmanRunner) Exec(name string, cmd []string) (string, error) {
	cfg := &handlers.ExecCreateConfig{
		ExecOptions: dockerContainer.ExecOptions{
			Cmd:          cmd,
			AttachStdout: true,
			AttachStderr: true,
		},
	}

	sessionID, err := containers.ExecCreate(p.conn, name, cfg)
	if err != nil {
		return "", fmt.Errorf("creating exec session in %s: %w", name, err)
	}

	var stdout, stderr bytes.Buffer
	opts := new(containers.ExecStartAndAttachOptions).
		WithOutputStream(nopWriteCloser{&stdout}).
		WithErrorStream(nopWriteCloser{&stderr}).
		WithAttachOutput(true).
		WithAttachError(true)
	if err := containers.ExecStartAndAttach(p.conn, sessionID, opts); err != nil {
		return "", fmt.Errorf("running %v in %s: %w", cmd, name, err)
	}

	inspect, err := containers.ExecInspect(p.conn, sessionID, nil)
	if err != nil {
		return "", fmt.Errorf("inspecting exec session in %s: %w", name, err)
	}
	if inspect.ExitCode != 0 {
		return stdout.String(), fmt.Errorf("%v in %s exited %d: %s",
			cmd, name, inspect.ExitCode, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

// nopWriteCloser adapts a buffer to the WriteCloser the attach options want.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
