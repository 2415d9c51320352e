package workflowsvc

import "context"

// Trigger starts externally defined multi-step orchestrations; the execution
// itself runs outside this process.
type Trigger interface {
	Start(ctx context.Context, workflowArn string, input interface{}) (executionArn string, err error)
}
