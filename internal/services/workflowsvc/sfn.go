package workflowsvc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
)

type StepFunctionTrigger struct {
	client *sfn.Client
}

func NewStepFunctionTrigger(ctx context.Context, region string) (*StepFunctionTrigger, error) {
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(region))
	if err != nil {
		return nil, err
	}

	return &StepFunctionTrigger{client: sfn.NewFromConfig(awsCfg)}, nil
}

func (t *StepFunctionTrigger) Start(ctx context.Context, workflowArn string, input interface{}) (string, error) {
	encoded, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encoding workflow input: %w", err)
	}

	out, err := t.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: &workflowArn,
		Input:           aws.String(string(encoded)),
	})
	if err != nil {
		return "", err
	}

	return aws.ToString(out.ExecutionArn), nil
}
