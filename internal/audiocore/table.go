package audiocore

// RouteTable is the bipartite device/route mapping. Route indices refer to
// Config.Routes. It is immutable once built.
type RouteTable struct {
	devices  map[string]DeviceConfig
	outgoing map[string][]int // input alias -> routes it feeds
	incoming map[string][]int // output alias -> routes mixed into it

	// Duplicates lists route aliases that repeat an earlier from/to pair.
	Duplicates []string
}

// NewRouteTable resolves routes against devices and enforces that every route
// runs from an input device to an output device.
func NewRouteTable(devices []DeviceConfig, routes []RouteConfig) (*RouteTable, error) {
	t := &RouteTable{
		devices:  make(map[string]DeviceConfig, len(devices)),
		outgoing: make(map[string][]int),
		incoming: make(map[string][]int),
	}
	for _, d := range devices {
		t.devices[d.Alias] = d
	}

	type pair struct{ from, to string }
	pairs := make(map[pair]struct{}, len(routes))
	aliases := make(map[string]struct{}, len(routes))

	for i, r := range routes {
		if r.Alias == "" {
			return nil, configError("route #%d has an empty alias", i+1)
		}
		if _, dup := aliases[r.Alias]; dup {
			return nil, configError("route %q defined twice", r.Alias)
		}
		aliases[r.Alias] = struct{}{}

		from, ok := t.devices[r.From]
		if !ok {
			return nil, configError("route %q references unknown source device %q", r.Alias, r.From)
		}
		to, ok := t.devices[r.To]
		if !ok {
			return nil, configError("route %q references unknown target device %q", r.Alias, r.To)
		}
		if from.Kind != KindInput {
			return nil, configError("route %q source %q must be an input device, got %s", r.Alias, r.From, from.Kind)
		}
		if to.Kind != KindOutput {
			return nil, configError("route %q target %q must be an output device, got %s", r.Alias, r.To, to.Kind)
		}

		p := pair{r.From, r.To}
		if _, dup := pairs[p]; dup {
			t.Duplicates = append(t.Duplicates, r.Alias)
		}
		pairs[p] = struct{}{}

		t.outgoing[r.From] = append(t.outgoing[r.From], i)
		t.incoming[r.To] = append(t.incoming[r.To], i)
	}

	return t, nil
}

// Outgoing returns the indices of routes fed by an input device.
func (t *RouteTable) Outgoing(alias string) []int {
	return t.outgoing[alias]
}

// Incoming returns the indices of routes mixed into an output device.
func (t *RouteTable) Incoming(alias string) []int {
	return t.incoming[alias]
}

// Used reports whether any route references the device.
func (t *RouteTable) Used(alias string) bool {
	return len(t.outgoing[alias]) > 0 || len(t.incoming[alias]) > 0
}
