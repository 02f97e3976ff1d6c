// Package system owns process lifecycle: starting and stopping every
// background component (scheduler, SLA monitor, ephemeral sweeper, HTTP
// server, ...) in a deterministic order, with rollback on a failed start.
package system

import (
	"context"
	"sort"
)

// Service represents a lifecycle-managed background component. Every
// long-running module (jobs.Scheduler, jobs.SLAMonitor, ephemeral.Sweeper,
// the HTTP server, ...) implements this so Manager can start and stop them
// uniformly.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DescriptorProvider optionally advertises a Service's placement and
// capabilities; implementing it is opt-in.
type DescriptorProvider interface {
	Descriptor() Descriptor
}

// CollectDescriptors extracts descriptors from providers, skipping nil
// entries, and sorts the result for deterministic presentation (layer then
// name).
func CollectDescriptors(providers []DescriptorProvider) []Descriptor {
	var out []Descriptor
	for _, p := range providers {
		if p == nil {
			continue
		}
		out = append(out, p.Descriptor())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Layer == out[j].Layer {
			return out[i].Name < out[j].Name
		}
		return out[i].Layer < out[j].Layer
	})
	return out
}
