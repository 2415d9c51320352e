package remote

import "context"

// AsyncInvocation is the receipt for one async endpoint call: where the
// worker will drop the result descriptor.
type AsyncInvocation struct {
	InferenceID    string
	OutputLocation string
}

// TrainingSpec is everything the managed trainer needs. Hyperparameters must
// already be flat string values; the launcher does not accept structures.
type TrainingSpec struct {
	JobID           string
	BaseJobName     string
	ImageUri        string
	RoleArn         string
	InstanceType    string
	VolumeSizeGB    int
	OutputS3Path    string
	Hyperparameters map[string]string
}

// TrainingHandle tracks a launched training run. Name returns the remote job
// name once the service has registered it, or "" while it is still pending.
type TrainingHandle interface {
	Name(ctx context.Context) (string, error)
}

// Executor is the managed ML execution port.
type Executor interface {
	InvokeAsync(ctx context.Context, endpointName, inferenceID string, payload []byte) (*AsyncInvocation, error)
	LaunchTraining(ctx context.Context, spec TrainingSpec) (TrainingHandle, error)
	ListEndpoints(ctx context.Context) ([]string, error)
}
