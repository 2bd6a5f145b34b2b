package azdo

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// Work item field reference names.
const (
	fieldType     = "System.WorkItemType"
	fieldTitle    = "System.Title"
	fieldState    = "System.State"
	fieldSeverity = "Microsoft.VSTS.Common.Severity"
)

// maxWorkItemBatch is the largest id list the work items endpoint accepts.
const maxWorkItemBatch = 200

type workItemJSON struct {
	Fields map[string]any `json:"fields"`
	ID     int            `json:"id"`
}

func (w workItemJSON) toWorkItem() types.WorkItem {
	field := func(name string) string {
		if v, ok := w.Fields[name].(string); ok {
			return v
		}
		return ""
	}
	return types.WorkItem{
		ID:       w.ID,
		Type:     field(fieldType),
		Title:    field(fieldTitle),
		State:    field(fieldState),
		Severity: field(fieldSeverity),
	}
}

// PullRequestWorkItems returns the ids of work items linked to a pull request.
func (c *Client) PullRequestWorkItems(ctx context.Context, pr *types.PullRequest) ([]int, error) {
	apiURL := withVersion(c.sameOrigin(pr.URL)+"/workitems", apiVersion)

	var resp struct {
		Value []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"value"`
	}
	if err := c.getJSON(ctx, apiURL, &resp); err != nil {
		return nil, fmt.Errorf("fetching work items of pull request %d: %w", pr.ID, err)
	}

	ids := make([]int, 0, len(resp.Value))
	for _, ref := range resp.Value {
		id, err := strconv.Atoi(ref.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// WorkItems fetches work items in batches.
func (c *Client) WorkItems(ctx context.Context, ids []int) ([]types.WorkItem, error) {
	var items []types.WorkItem
	for start := 0; start < len(ids); start += maxWorkItemBatch {
		end := min(start+maxWorkItemBatch, len(ids))

		parts := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			parts = append(parts, strconv.Itoa(id))
		}
		apiURL := withVersion(c.baseURL+"/_apis/wit/workitems?ids="+strings.Join(parts, ","), apiVersion)

		var resp struct {
			Value []workItemJSON `json:"value"`
		}
		if err := c.getJSON(ctx, apiURL, &resp); err != nil {
			return nil, fmt.Errorf("fetching work items: %w", err)
		}
		for _, w := range resp.Value {
			items = append(items, w.toWorkItem())
		}
	}
	return items, nil
}

// WorkItem fetches a single work item.
func (c *Client) WorkItem(ctx context.Context, id int) (*types.WorkItem, error) {
	apiURL := withVersion(fmt.Sprintf("%s/_apis/wit/workitems/%d", c.baseURL, id), apiVersion)

	var w workItemJSON
	if err := c.getJSON(ctx, apiURL, &w); err != nil {
		return nil, fmt.Errorf("fetching work item %d: %w", id, err)
	}
	item := w.toWorkItem()
	return &item, nil
}
