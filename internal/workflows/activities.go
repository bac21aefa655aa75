package workflows

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/Keyring-Network/gavryn-tutor/internal/websearch"
)

const webSearchErrorType = "WebSearchError"

type SearchActivities struct {
	searcher websearch.Searcher
}

func NewSearchActivities(searcher websearch.Searcher) *SearchActivities {
	return &SearchActivities{searcher: searcher}
}

func (a *SearchActivities) SearchWeb(ctx context.Context, input WebSearchInput) (WebSearchResult, error) {
	if a.searcher == nil {
		return WebSearchResult{}, temporal.NewNonRetryableApplicationError("no web searcher configured", webSearchErrorType, nil)
	}
	text, err := a.searcher.Search(ctx, input.Query)
	if err != nil {
		activity.GetLogger(ctx).Warn("web search failed", "session_id", input.SessionID, "error", err)
		var searchErr *websearch.Error
		if errors.As(err, &searchErr) {
			return WebSearchResult{}, temporal.NewNonRetryableApplicationError(searchErr.Error(), webSearchErrorType, err, searchErr.Status)
		}
		return WebSearchResult{}, temporal.NewNonRetryableApplicationError(err.Error(), webSearchErrorType, err)
	}
	return WebSearchResult{Text: text}, nil
}
