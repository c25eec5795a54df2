package wiki

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// RevisionRangeBatch returns one page of revision ids for a page, ascending,
// starting at startRev (inclusive), plus the continuation token for the next
// call ("" when exhausted). Content is not fetched here.
func (c *Client) RevisionRangeBatch(ctx context.Context, pageID, startRev int64, continueFrom string) ([]RevisionRef, string, error) {
	if err := c.EnsureLoggedIn(ctx); err != nil {
		return nil, "", err
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("pageids", strconv.FormatInt(pageID, 10))
	params.Set("prop", "revisions")
	params.Set("rvprop", "ids|timestamp")
	params.Set("rvdir", "newer")
	params.Set("rvlimit", strconv.Itoa(ListBatchSize))

	if startRev > 0 {
		params.Set("rvstartid", strconv.FormatInt(startRev, 10))
	}
	if continueFrom != "" {
		params.Set("rvcontinue", continueFrom)
	}

	resp, err := c.apiRequest(ctx, params)
	if err != nil {
		return nil, "", err
	}

	page, err := singlePage(resp, "revision range")
	if err != nil {
		return nil, "", err
	}

	revs := getSlice(page["revisions"])
	refs := make([]RevisionRef, 0, len(revs))
	for _, r := range revs {
		rev := getMap(r)
		if rev == nil {
			continue
		}
		refs = append(refs, RevisionRef{
			PageID:    pageID,
			RevID:     getInt64(rev["revid"]),
			Timestamp: getString(rev["timestamp"]),
		})
	}

	var next string
	if cont := getMap(resp["continue"]); cont != nil {
		next = getString(cont["rvcontinue"])
	}

	return refs, next, nil
}

// LatestRevision returns the newest revision of a page (ids and timestamp
// only). Used to compute the wiki-side watermark before a push.
func (c *Client) LatestRevision(ctx context.Context, pageID int64) (RevisionRef, error) {
	if err := c.EnsureLoggedIn(ctx); err != nil {
		return RevisionRef{}, err
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("pageids", strconv.FormatInt(pageID, 10))
	params.Set("prop", "revisions")
	params.Set("rvprop", "ids|timestamp")
	params.Set("rvlimit", "1")

	resp, err := c.apiRequest(ctx, params)
	if err != nil {
		return RevisionRef{}, err
	}

	page, err := singlePage(resp, "latest revision")
	if err != nil {
		return RevisionRef{}, err
	}

	revs := getSlice(page["revisions"])
	if len(revs) == 0 {
		// A page can briefly exist without visible revisions; report it
		// as having none rather than failing the whole run.
		return RevisionRef{}, nil
	}
	rev := getMap(revs[0])
	if rev == nil {
		return RevisionRef{}, &BadResponseError{Operation: "latest revision", Missing: "revisions[0]"}
	}

	return RevisionRef{
		PageID:    pageID,
		RevID:     getInt64(rev["revid"]),
		Timestamp: getString(rev["timestamp"]),
	}, nil
}

// RecentChangesBatch returns one page of edit/new entries from the wiki's
// recentchanges feed, oldest first, plus the continuation token for the
// next call ("" when exhausted). Drives the by_rev fetch strategy.
func (c *Client) RecentChangesBatch(ctx context.Context, continueFrom string) ([]RevisionRef, string, error) {
	if err := c.EnsureLoggedIn(ctx); err != nil {
		return nil, "", err
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "recentchanges")
	params.Set("rcprop", "ids|timestamp")
	params.Set("rctype", "edit|new")
	params.Set("rcdir", "newer")
	params.Set("rclimit", strconv.Itoa(ListBatchSize))

	if continueFrom != "" {
		params.Set("rccontinue", continueFrom)
	}

	resp, err := c.apiRequest(ctx, params)
	if err != nil {
		return nil, "", err
	}

	query := getMap(resp["query"])
	if query == nil {
		return nil, "", &BadResponseError{Operation: "recent changes", Missing: "query"}
	}

	rcList := getSlice(query["recentchanges"])
	refs := make([]RevisionRef, 0, len(rcList))
	for _, rc := range rcList {
		change := getMap(rc)
		if change == nil {
			continue
		}
		refs = append(refs, RevisionRef{
			PageID:    getInt64(change["pageid"]),
			RevID:     getInt64(change["revid"]),
			Timestamp: getString(change["timestamp"]),
		})
	}

	var next string
	if cont := getMap(resp["continue"]); cont != nil {
		next = getString(cont["rccontinue"])
	}

	return refs, next, nil
}

// Revision fetches one revision in full: content, author, comment,
// timestamp, and the owning page's title.
func (c *Client) Revision(ctx context.Context, revID int64) (Revision, error) {
	if err := c.EnsureLoggedIn(ctx); err != nil {
		return Revision{}, err
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("revids", strconv.FormatInt(revID, 10))
	params.Set("prop", "revisions")
	params.Set("rvprop", "ids|content|timestamp|user|comment")

	resp, err := c.apiRequest(ctx, params)
	if err != nil {
		return Revision{}, err
	}

	page, err := singlePage(resp, "revision content")
	if err != nil {
		return Revision{}, err
	}

	revs := getSlice(page["revisions"])
	if len(revs) == 0 {
		return Revision{}, &BadResponseError{Operation: "revision content", Missing: "revisions"}
	}
	rev := getMap(revs[0])
	if rev == nil {
		return Revision{}, &BadResponseError{Operation: "revision content", Missing: "revisions[0]"}
	}

	content := getString(rev["*"])
	// Newer wikis return content under rvslots.
	if content == "" {
		if slots := getMap(rev["slots"]); slots != nil {
			if main := getMap(slots["main"]); main != nil {
				content = getString(main["*"])
			}
		}
	}

	result := Revision{
		PageID:    getInt64(page["pageid"]),
		RevID:     getInt64(rev["revid"]),
		Title:     getString(page["title"]),
		User:      getString(rev["user"]),
		Timestamp: getString(rev["timestamp"]),
		Comment:   getString(rev["comment"]),
		Content:   content,
	}
	if _, minor := rev["minor"]; minor {
		result.Minor = true
	}

	if result.RevID != revID {
		return Revision{}, fmt.Errorf("asked for revision %d, wiki answered with %d", revID, result.RevID)
	}

	return result, nil
}

// singlePage digs the single page object out of a query response. Queries
// here always address exactly one page.
func singlePage(resp map[string]interface{}, operation string) (map[string]interface{}, error) {
	query := getMap(resp["query"])
	if query == nil {
		return nil, &BadResponseError{Operation: operation, Missing: "query"}
	}
	pages := getMap(query["pages"])
	if pages == nil {
		return nil, &BadResponseError{Operation: operation, Missing: "pages"}
	}
	for _, pageData := range pages {
		page := getMap(pageData)
		if page == nil {
			continue
		}
		return page, nil
	}
	return nil, &BadResponseError{Operation: operation, Missing: "pages entry"}
}
