package wiki

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/olgasafonova/git-remote-mediawiki/metrics"
)

// Edit creates or modifies a page. The caller supplies fully normalized
// text; no content rewriting happens here. When req.BaseTimestamp is set,
// the wiki rejects the edit with an editconflict error if the page moved
// past that revision, which the caller surfaces as a non-fast-forward.
func (c *Client) Edit(ctx context.Context, req EditRequest) (EditResult, error) {
	if req.Title == "" {
		return EditResult{}, fmt.Errorf("edit: page title is required")
	}

	token, err := c.getCSRFToken(ctx)
	if err != nil {
		return EditResult{}, fmt.Errorf("authentication failed: %w", err)
	}

	params := url.Values{}
	params.Set("action", "edit")
	params.Set("title", req.Title)
	params.Set("text", req.Text)
	params.Set("token", token)
	params.Set("bot", "1")

	if req.Summary != "" {
		params.Set("summary", req.Summary)
	}
	if req.BaseTimestamp != "" {
		params.Set("basetimestamp", req.BaseTimestamp)
	}

	start := time.Now()
	resp, err := c.apiRequest(ctx, params)
	if err != nil {
		// A stale CSRF token gets one refresh, then the edit is retried once.
		if ae, ok := AsAPIError(err); ok && ae.Code == ErrCodeBadToken {
			c.csrfToken = ""
			token, tokenErr := c.getCSRFToken(ctx)
			if tokenErr != nil {
				return EditResult{}, fmt.Errorf("token refresh failed: %w", tokenErr)
			}
			params.Set("token", token)
			resp, err = c.apiRequest(ctx, params)
		}
		if err != nil {
			metrics.RecordEdit("edit", false)
			return EditResult{}, err
		}
	}

	edit := getMap(resp["edit"])
	if edit == nil {
		metrics.RecordEdit("edit", false)
		return EditResult{}, &BadResponseError{Operation: "edit", Missing: "edit"}
	}

	if result := getString(edit["result"]); result != "Success" {
		metrics.RecordEdit("edit", false)
		return EditResult{}, fmt.Errorf("edit of %q failed: %s", req.Title, result)
	}

	metrics.RecordEdit("edit", true)
	metrics.EditDuration.Observe(time.Since(start).Seconds())

	return EditResult{
		Title:    getString(edit["title"]),
		PageID:   getInt64(edit["pageid"]),
		NewRevID: getInt64(edit["newrevid"]),
		NewPage:  edit["new"] != nil,
	}, nil
}
