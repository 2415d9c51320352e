package artifacts

import (
	"strings"

	"github.com/sdstation/middleware/internal/types"
	"github.com/sdstation/middleware/pkg/logger"
)

// PluginInvocation is one active plugin attached to a job request: its
// identifier plus the argument map it was invoked with.
type PluginInvocation struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// Request carries everything the resolver consults besides the plugin list:
// the GUI's VAE selection, the prompt-embedded extra-network tags, and the
// worker's local artifact inventories used to resolve those tags.
type Request struct {
	Plugins []PluginInvocation

	// VAE is the active VAE setting; empty, "None" and "Automatic" mean the
	// worker decides and produce no reference.
	VAE string

	// LoraTags and HypernetworkTags are the names embedded in the prompt as
	// <lora:...> / <hypernet:...>.
	LoraTags         []string
	HypernetworkTags []string

	// LoraFiles lists the filenames in the worker's LoRA directory; a tag
	// resolves to every file whose name starts with the tag.
	LoraFiles []string

	// Hypernetworks maps a registered hypernetwork name to its backing
	// filename.
	Hypernetworks map[string]string

	// EmbeddingFiles lists the backing filename of every loaded textual
	// inversion embedding.
	EmbeddingFiles []string
}

// Resolver merges every active plugin's artifact declarations with the
// request-level selections into one deduplicated per-category list.
type Resolver struct {
	registry *Registry
}

func NewResolver(registry *Registry) *Resolver {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Resolver{registry: registry}
}

// Resolve never fails: a provider's own error is logged and skipped so one
// broken plugin cannot block submission. A missing artifact surfaces at
// remote-execution time instead.
func (r *Resolver) Resolve(req Request) map[string][]types.ArtifactReference {
	merged := make(map[string][]types.ArtifactReference)
	seen := make(map[string]map[string]bool)

	add := func(category string, refs []types.ArtifactReference) {
		if len(refs) == 0 {
			return
		}
		if seen[category] == nil {
			seen[category] = make(map[string]bool)
		}
		for _, ref := range refs {
			if ref.Name == "" || seen[category][ref.Name] {
				continue
			}
			seen[category][ref.Name] = true
			merged[category] = append(merged[category], ref)
		}
	}

	for _, plugin := range req.Plugins {
		contribution, err := r.registry.Lookup(plugin.Name).Provide(plugin.Args)
		if err != nil {
			logger.Warn("skipping plugin artifacts", "plugin", plugin.Name, "error", err.Error())
			continue
		}
		for category, refs := range contribution {
			add(category, refs)
		}
	}

	if req.VAE != "" && req.VAE != "None" && req.VAE != types.VAEAutomatic {
		add(types.CategoryVAE, []types.ArtifactReference{{Name: req.VAE}})
	}

	for _, tag := range req.LoraTags {
		for _, file := range req.LoraFiles {
			if strings.HasPrefix(file, tag) {
				add(types.CategoryLora, []types.ArtifactReference{{Name: file}})
			}
		}
	}

	for _, tag := range req.HypernetworkTags {
		if file, ok := req.Hypernetworks[tag]; ok && file != "" {
			add(types.CategoryHypernetwork, []types.ArtifactReference{{Name: file}})
		}
	}

	for _, file := range req.EmbeddingFiles {
		add(types.CategoryEmbedding, []types.ArtifactReference{{Name: file}})
	}

	return merged
}
