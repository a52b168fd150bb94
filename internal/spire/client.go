// Package spire is a thin client for the identity-issuance server. All
// operations run the server's own CLI inside its container; the runner never
// speaks the SPIRE APIs directly.
package spire

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const serverBinary = "/opt/spire/bin/spire-server"

// Execer runs a command inside a named running container.
type Execer interface {
	Exec(container string, cmd []string) (string, error)
}

// Client exposes the operations the run needs: healthcheck, trust bundle
// retrieval, join token generation and registration entry creation.
type Client struct {
	exec        Execer
	container   string
	trustDomain string
}

func NewClient(exec Execer, container, trustDomain string) *Client {
	return &Client{exec: exec, container: container, trustDomain: trustDomain}
}

func (c *Client) Healthcheck() error {
	if _, err := c.exec.Exec(c.container, []string{serverBinary, "healthcheck"}); err != nil {
		return fmt.Errorf("identity server not healthy: %w", err)
	}
	return nil
}

// TrustBundle returns the server's trust bundle in SPIFFE format, used to
// bootstrap the per-release agents.
func (c *Client) TrustBundle() (string, error) {
	out, err := c.exec.Exec(c.container, []string{serverBinary, "bundle", "show", "-format", "spiffe"})
	if err != nil {
		return "", fmt.Errorf("fetching trust bundle: %w", err)
	}
	return out, nil
}

// GenerateJoinToken mints a single-use token that attests a joining agent
// as spiffeID. Each per-release agent gets its own token.
func (c *Client) GenerateJoinToken(spiffeID string) (string, error) {
	out, err := c.exec.Exec(c.container, []string{serverBinary, "token", "generate", "-spiffeID", spiffeID})
	if err != nil {
		return "", fmt.Errorf("generating join token for %s: %w", spiffeID, err)
	}
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "Token:"))
	if token == "" {
		return "", fmt.Errorf("generating join token for %s: empty token in output %q", spiffeID, out)
	}
	return token, nil
}

// Entry is one registration entry: which workload (selector) under which
// agent (parent) receives which identity, and for how long.
type Entry struct {
	ParentID string
	SpiffeID string
	Selector string
	TTL      time.Duration
}

func (c *Client) CreateEntry(entry Entry) error {
	cmd := []string{
		serverBinary, "entry", "create",
		"-parentID", entry.ParentID,
		"-spiffeID", entry.SpiffeID,
		"-selector", entry.Selector,
		"-ttl", strconv.Itoa(int(entry.TTL.Seconds())),
	}
	if _, err := c.exec.Exec(c.container, cmd); err != nil {
		return fmt.Errorf("creating entry %s: %w", entry.SpiffeID, err)
	}

	zap.S().Infow("registration entry created", "spiffe_id", entry.SpiffeID, "selector", entry.Selector)
	return nil
}
