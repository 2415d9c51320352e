package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	smtypes "github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"

	"github.com/sdstation/middleware/internal/services/objectstore"
)

const asyncInputPrefix = "async-input"

// maxTrainRuntimeSeconds bounds a single managed training run; the trainer
// kills the job past this point regardless of our supervision workflow.
const maxTrainRuntimeSeconds = 24 * 60 * 60

// SageMakerExecutor drives async inference and training through the managed
// service. Async invocations stage their payload in the object store first;
// the runtime only accepts an input location, not an inline body.
type SageMakerExecutor struct {
	runtime *sagemakerruntime.Client
	control *sagemaker.Client
	store   objectstore.Store
	bucket  string
}

func NewSageMakerExecutor(ctx context.Context, region string, store objectstore.Store, bucket string) (*SageMakerExecutor, error) {
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(region))
	if err != nil {
		return nil, err
	}

	return &SageMakerExecutor{
		runtime: sagemakerruntime.NewFromConfig(awsCfg),
		control: sagemaker.NewFromConfig(awsCfg),
		store:   store,
		bucket:  bucket,
	}, nil
}

func (e *SageMakerExecutor) InvokeAsync(ctx context.Context, endpointName, inferenceID string, payload []byte) (*AsyncInvocation, error) {
	inputKey := fmt.Sprintf("%s/%s.json", asyncInputPrefix, inferenceID)
	if err := e.store.Put(ctx, inputKey, payload); err != nil {
		return nil, fmt.Errorf("staging async input: %w", err)
	}

	inputLocation := fmt.Sprintf("s3://%s/%s", e.bucket, inputKey)
	out, err := e.runtime.InvokeEndpointAsync(ctx, &sagemakerruntime.InvokeEndpointAsyncInput{
		EndpointName:             &endpointName,
		InputLocation:            &inputLocation,
		InferenceId:              &inferenceID,
		InvocationTimeoutSeconds: aws.Int32(3600),
	})
	if err != nil {
		return nil, err
	}

	return &AsyncInvocation{
		InferenceID:    aws.ToString(out.InferenceId),
		OutputLocation: aws.ToString(out.OutputLocation),
	}, nil
}

func (e *SageMakerExecutor) LaunchTraining(ctx context.Context, spec TrainingSpec) (TrainingHandle, error) {
	name := trainingJobName(spec)

	_, err := e.control.CreateTrainingJob(ctx, &sagemaker.CreateTrainingJobInput{
		TrainingJobName: &name,
		RoleArn:         &spec.RoleArn,
		AlgorithmSpecification: &smtypes.AlgorithmSpecification{
			TrainingImage:     &spec.ImageUri,
			TrainingInputMode: smtypes.TrainingInputModeFile,
		},
		ResourceConfig: &smtypes.ResourceConfig{
			InstanceCount:  aws.Int32(1),
			InstanceType:   smtypes.TrainingInstanceType(spec.InstanceType),
			VolumeSizeInGB: aws.Int32(int32(spec.VolumeSizeGB)),
		},
		OutputDataConfig: &smtypes.OutputDataConfig{
			S3OutputPath: &spec.OutputS3Path,
		},
		StoppingCondition: &smtypes.StoppingCondition{
			MaxRuntimeInSeconds: aws.Int32(maxTrainRuntimeSeconds),
		},
		HyperParameters: spec.Hyperparameters,
	})
	if err != nil {
		return nil, err
	}

	return &sagemakerTrainingHandle{control: e.control, name: name}, nil
}

func (e *SageMakerExecutor) ListEndpoints(ctx context.Context) ([]string, error) {
	var names []string
	paginator := sagemaker.NewListEndpointsPaginator(e.control, &sagemaker.ListEndpointsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, ep := range page.Endpoints {
			names = append(names, aws.ToString(ep.EndpointName))
		}
	}

	return names, nil
}

type sagemakerTrainingHandle struct {
	control *sagemaker.Client
	name    string
}

func (h *sagemakerTrainingHandle) Name(ctx context.Context) (string, error) {
	out, err := h.control.DescribeTrainingJob(ctx, &sagemaker.DescribeTrainingJobInput{
		TrainingJobName: &h.name,
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFound
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", err
	}

	return aws.ToString(out.TrainingJobName), nil
}

// trainingJobName derives a name the trainer accepts: the model's base name
// plus a job-id suffix, with characters outside [A-Za-z0-9-] replaced.
func trainingJobName(spec TrainingSpec) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, spec.BaseJobName)

	suffix := spec.JobID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}

	return fmt.Sprintf("%s-%s", strings.Trim(base, "-"), suffix)
}
