package workflows

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/Keyring-Network/gavryn-tutor/internal/websearch"
)

const DefaultTaskQueue = "tutor-web-search"

// Service runs web searches through Temporal. It satisfies websearch.Searcher
// so callers do not know whether a lookup ran inline or on a worker.
type Service struct {
	client    client.Client
	taskQueue string
}

func NewService(client client.Client, taskQueue string) *Service {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Service{client: client, taskQueue: taskQueue}
}

func (s *Service) Search(ctx context.Context, query string) (string, error) {
	options := client.StartWorkflowOptions{
		ID:        workflowID(),
		TaskQueue: s.taskQueue,
	}
	input := WebSearchInput{SessionID: websearch.SessionIDFrom(ctx), Query: query}
	run, err := s.client.ExecuteWorkflow(ctx, options, WebSearchWorkflow, input)
	if err != nil {
		return "", &websearch.Error{Op: "start workflow", Err: err}
	}
	var result WebSearchResult
	if err := run.Get(ctx, &result); err != nil {
		return "", &websearch.Error{Op: "workflow", Err: err}
	}
	return result.Text, nil
}

func workflowID() string {
	return fmt.Sprintf("web-search:%s", uuid.NewString())
}
