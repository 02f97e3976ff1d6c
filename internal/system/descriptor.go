package system

// Layer describes the architectural slice a component belongs to. These map
// onto the control plane's own layering: ingress (the HTTP surface), the
// control loop (scheduler, SLA monitor, lease/complete), the agent fleet,
// and the data layer (connector pool, result cache, storage).
type Layer string

const (
	LayerIngress Layer = "ingress"
	LayerControl Layer = "control"
	LayerFleet   Layer = "fleet"
	LayerData    Layer = "data"
)

// Descriptor advertises a component's placement and capabilities. It is
// optional and does not change runtime behavior, but lets the manager (and
// any future admin surface) reason about the running system consistently.
type Descriptor struct {
	Name         string
	Layer        Layer
	Capabilities []string
}

// WithCapabilities returns a copy of the descriptor with additional
// capabilities appended.
func (d Descriptor) WithCapabilities(caps ...string) Descriptor {
	if len(caps) == 0 {
		return d
	}
	combined := make([]string, 0, len(d.Capabilities)+len(caps))
	combined = append(combined, d.Capabilities...)
	combined = append(combined, caps...)
	d.Capabilities = combined
	return d
}
