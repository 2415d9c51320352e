package artifacts

import (
	"fmt"
	"sync"

	"github.com/sdstation/middleware/internal/types"
)

// Provider reports which model artifacts one plugin consumes, keyed by the
// plugin's own category vocabulary. Args is the plugin's raw argument map as
// submitted with the job; providers pull out only the fields they understand.
type Provider interface {
	Provide(args map[string]interface{}) (map[string][]types.ArtifactReference, error)
}

type ProviderFunc func(args map[string]interface{}) (map[string][]types.ArtifactReference, error)

func (f ProviderFunc) Provide(args map[string]interface{}) (map[string][]types.ArtifactReference, error) {
	return f(args)
}

// Registry maps a plugin identifier to its Provider. Unknown identifiers
// resolve to a no-op provider so callers never branch on registration state.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

func (r *Registry) Lookup(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.providers[name]; ok {
		return p
	}
	return noopProvider{}
}

type noopProvider struct{}

func (noopProvider) Provide(map[string]interface{}) (map[string][]types.ArtifactReference, error) {
	return nil, nil
}

// DefaultRegistry registers the providers for the plugins the remote worker
// ships with.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("controlnet", ProviderFunc(provideControlNet))
	r.Register("x/y/z plot", ProviderFunc(provideXYZPlot))
	return r
}

// provideControlNet reads the plugin's unit list and collects the model of
// every enabled unit. A unit with model "None" contributes nothing.
func provideControlNet(args map[string]interface{}) (map[string][]types.ArtifactReference, error) {
	units, ok := args["controlnet_units"].([]interface{})
	if !ok {
		return nil, nil
	}

	var refs []types.ArtifactReference
	for _, raw := range units {
		unit, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("controlnet unit is not an object: %T", raw)
		}
		if enabled, ok := unit["enabled"].(bool); ok && !enabled {
			continue
		}
		model, _ := unit["model"].(string)
		if model == "" || model == "None" {
			continue
		}
		refs = append(refs, types.ArtifactReference{Name: model})
	}

	if len(refs) == 0 {
		return nil, nil
	}
	return map[string][]types.ArtifactReference{types.CategoryControlNet: refs}, nil
}

// xyzCheckpointAxis is the axis type the plot plugin uses for checkpoint
// sweeps; its values are checkpoint names the worker must have on disk.
const xyzCheckpointAxis = "Checkpoint name"

func provideXYZPlot(args map[string]interface{}) (map[string][]types.ArtifactReference, error) {
	var refs []types.ArtifactReference
	for _, axis := range []string{"x", "y", "z"} {
		axisType, _ := args[axis+"_type"].(string)
		if axisType != xyzCheckpointAxis {
			continue
		}
		values, ok := args[axis+"_values"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("%s_values is not a list: %T", axis, args[axis+"_values"])
		}
		for _, v := range values {
			name, _ := v.(string)
			if name == "" {
				continue
			}
			refs = append(refs, types.ArtifactReference{Name: name})
		}
	}

	if len(refs) == 0 {
		return nil, nil
	}
	return map[string][]types.ArtifactReference{types.CategoryCheckpoint: refs}, nil
}
