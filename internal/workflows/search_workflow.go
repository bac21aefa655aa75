package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	SearchWebActivityName = "SearchWeb"

	searchStartToClose = 15 * time.Second
)

type WebSearchInput struct {
	SessionID string
	Query     string
}

type WebSearchResult struct {
	Text string
}

// WebSearchWorkflow runs a single consented web lookup. The activity is
// attempted exactly once.
func WebSearchWorkflow(ctx workflow.Context, input WebSearchInput) (WebSearchResult, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: searchStartToClose,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	logger := workflow.GetLogger(ctx)
	logger.Info("web search requested", "session_id", input.SessionID)

	var result WebSearchResult
	if err := workflow.ExecuteActivity(ctx, SearchWebActivityName, input).Get(ctx, &result); err != nil {
		logger.Error("web search activity failed", "session_id", input.SessionID, "error", err)
		return WebSearchResult{}, err
	}
	return result, nil
}
