package types

// Task types understood by the remote inference worker.
const (
	TaskTxt2Img     = "txt2img"
	TaskImg2Img     = "img2img"
	TaskCreateModel = "db-create-model"
)

// Model artifact categories. The spellings match what the remote worker and
// the WebUI plugin exchange, so they are wire values, not display names.
const (
	CategoryCheckpoint   = "Stable-diffusion"
	CategoryLora         = "Lora"
	CategoryHypernetwork = "hypernetworks"
	CategoryEmbedding    = "embeddings"
	CategoryControlNet   = "ControlNet"
	CategoryVAE          = "VAE"
)

// VAEAutomatic is the WebUI sentinel for "let the worker pick"; it never
// becomes an artifact reference.
const VAEAutomatic = "Automatic"

// ArtifactReference names one model asset used by a job. Location may be a
// full URI or a bare filename, depending on who declared it.
type ArtifactReference struct {
	Name     string `json:"model_name" msgpack:"model_name"`
	Location string `json:"s3,omitempty" msgpack:"s3,omitempty"`
}

type CheckpointStatus string

const (
	CheckpointStatusInitial CheckpointStatus = "Initial"
	CheckpointStatusActive  CheckpointStatus = "Active"
)

type ModelStatus string

const (
	ModelStatusInitial  ModelStatus = "Initial"
	ModelStatusCreating ModelStatus = "Creating"
	ModelStatusComplete ModelStatus = "Complete"
	ModelStatusFail     ModelStatus = "Fail"
)

// Terminal reports whether the model build can never move again.
func (s ModelStatus) Terminal() bool {
	return s == ModelStatusComplete || s == ModelStatusFail
}

type TrainJobStatus string

const (
	TrainJobStatusInitial  TrainJobStatus = "Initial"
	TrainJobStatusTraining TrainJobStatus = "Training"
	TrainJobStatusComplete TrainJobStatus = "Complete"
	TrainJobStatusFail     TrainJobStatus = "Fail"
)

type InferenceJobStatus string

const (
	InferenceStatusInProgress InferenceJobStatus = "inprogress"
	InferenceStatusSucceed    InferenceJobStatus = "succeed"
	InferenceStatusFailure    InferenceJobStatus = "failure"
)

func (s InferenceJobStatus) Terminal() bool {
	return s == InferenceStatusSucceed || s == InferenceStatusFailure
}

type EndpointStatus string

const (
	EndpointStatusCreating  EndpointStatus = "Creating"
	EndpointStatusInService EndpointStatus = "InService"
	EndpointStatusFailed    EndpointStatus = "failed"
	EndpointStatusDeleting  EndpointStatus = "Deleting"
	EndpointStatusDeleted   EndpointStatus = "Deleted"
)

// MultipartFileReq describes one file a client wants to upload into a new
// checkpoint: its name and how many parts the upload will be split into.
type MultipartFileReq struct {
	Filename    string `json:"filename"`
	PartsNumber int    `json:"parts_number"`
}
