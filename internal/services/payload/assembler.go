// Package payload builds the canonical JSON payload the remote inference
// worker consumes, from a stored parameter template plus the caller's
// per-request overrides.
package payload

import (
	"fmt"

	"github.com/sdstation/middleware/internal/types"
)

// Template keys. The template is the full default parameter set the GUI
// uploads (config/aigc.json); these spellings are part of that contract.
const (
	endpointField = "endpoint_name"
	modelsField   = "models"
	taskTypeField = "task_type"
)

var endpointTemplateKeys = map[string]string{
	types.TaskTxt2Img: "txt2img_sagemaker_endpoint",
	types.TaskImg2Img: "img2img_sagemaker_endpoint",
}

var checkpointTemplateKeys = map[string]string{
	types.TaskTxt2Img: "txt2img_sagemaker_stable_diffusion_checkpoint",
	types.TaskImg2Img: "img2img_sagemaker_stable_diffusion_checkpoint",
}

// Assemble merges overrides onto the template, injects the resolved artifact
// lists under "models" and selects the target endpoint. The template and the
// overrides are not mutated. Output depends only on the four inputs; request
// ids and timestamps are the caller's business.
//
// Unknown override keys pass through verbatim. The only failure is an
// unrecognized task type with no explicit endpoint override.
func Assemble(template, overrides map[string]interface{}, taskType string, artifacts map[string][]types.ArtifactReference) (map[string]interface{}, error) {
	endpoint, err := selectEndpoint(template, overrides, taskType)
	if err != nil {
		return nil, err
	}

	out := deepCopyMap(template)
	mergeInto(out, overrides)

	if len(artifacts) > 0 {
		models := make(map[string]interface{}, len(artifacts))
		for category, refs := range artifacts {
			models[category] = refs
		}
		out[modelsField] = models
	}
	out[endpointField] = endpoint
	out[taskTypeField] = taskType

	return out, nil
}

// DefaultCheckpoint returns the template's default checkpoint for the task
// type. Used by callers that record which checkpoint a job ran against when
// the request itself names none.
func DefaultCheckpoint(template map[string]interface{}, taskType string) (string, error) {
	key, ok := checkpointTemplateKeys[taskType]
	if !ok {
		return "", fmt.Errorf("%w: no default checkpoint for task type %q", types.ErrValidation, taskType)
	}
	name, _ := template[key].(string)
	if name == "" {
		return "", fmt.Errorf("%w: template has no %s", types.ErrValidation, key)
	}
	return name, nil
}

func selectEndpoint(template, overrides map[string]interface{}, taskType string) (string, error) {
	if name, _ := overrides[endpointField].(string); name != "" {
		return name, nil
	}
	key, ok := endpointTemplateKeys[taskType]
	if !ok {
		return "", fmt.Errorf("%w: unknown task type %q and no endpoint_name override", types.ErrValidation, taskType)
	}
	name, _ := template[key].(string)
	if name == "" {
		return "", fmt.Errorf("%w: template has no %s", types.ErrValidation, key)
	}
	return name, nil
}

// mergeInto applies src onto dst key by key. Nested maps merge recursively;
// lists and scalars replace wholesale.
func mergeInto(dst, src map[string]interface{}) {
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]interface{})
		dstMap, dstIsMap := dst[k].(map[string]interface{})
		if srcIsMap && dstIsMap {
			mergeInto(dstMap, srcMap)
			continue
		}
		dst[k] = deepCopyValue(v)
	}
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
