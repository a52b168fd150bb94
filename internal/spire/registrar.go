package spire

import (
	"context"
	"fmt"
	"time"
)

// Registrar creates the registration entries for the two proxy workloads.
// Registration happens once per run, right after the shared server is up;
// the entries outlive every per-release iteration.
type Registrar struct {
	client      *Client
	trustDomain string
}

func NewRegistrar(client *Client, trustDomain string) *Registrar {
	return &Registrar{client: client, trustDomain: trustDomain}
}

func (r *Registrar) Register(_ context.Context) error {
	parentID := fmt.Sprintf("spiffe://%s/agent/node", r.trustDomain)

	for _, workload := range []string{"upstream-workload", "downstream-workload"} {
		entry := Entry{
			ParentID: parentID,
			SpiffeID: fmt.Sprintf("spiffe://%s/%s", r.trustDomain, workload),
			Selector: "unix:uid:0",
			TTL:      time.Hour,
		}
		if err := r.client.CreateEntry(entry); err != nil {
			return err
		}
	}
	return nil
}
