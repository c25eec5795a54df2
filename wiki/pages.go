package wiki

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// PagesByTitles resolves explicit titles to pages. Titles are queried in
// batches of at most TitleBatchSize. Titles missing on the wiki are
// returned separately rather than failing the call.
func (c *Client) PagesByTitles(ctx context.Context, titles []string) ([]Page, []string, error) {
	if err := c.EnsureLoggedIn(ctx); err != nil {
		return nil, nil, err
	}

	pages := make([]Page, 0, len(titles))
	var missing []string

	for i := 0; i < len(titles); i += TitleBatchSize {
		end := i + TitleBatchSize
		if end > len(titles) {
			end = len(titles)
		}
		batch := titles[i:end]

		params := url.Values{}
		params.Set("action", "query")
		params.Set("titles", strings.Join(batch, "|"))

		resp, err := c.apiRequest(ctx, params)
		if err != nil {
			return nil, nil, err
		}

		query := getMap(resp["query"])
		if query == nil {
			return nil, nil, &BadResponseError{Operation: "pages by titles", Missing: "query"}
		}
		pagesObj := getMap(query["pages"])
		if pagesObj == nil {
			return nil, nil, &BadResponseError{Operation: "pages by titles", Missing: "pages"}
		}

		for _, pageData := range pagesObj {
			page := getMap(pageData)
			if page == nil {
				continue
			}
			title := getString(page["title"])
			if _, absent := page["missing"]; absent {
				missing = append(missing, title)
				continue
			}
			pages = append(pages, Page{
				ID:    getInt64(page["pageid"]),
				Title: title,
			})
		}
	}

	return pages, missing, nil
}

// CategoryMembersBatch returns one page of members of a category plus the
// continuation token for the next call ("" when exhausted). The category
// name is given its namespace prefix when missing.
func (c *Client) CategoryMembersBatch(ctx context.Context, category, continueFrom string) ([]Page, string, error) {
	if err := c.EnsureLoggedIn(ctx); err != nil {
		return nil, "", err
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "categorymembers")
	params.Set("cmtitle", NormalizeCategory(category))
	params.Set("cmlimit", strconv.Itoa(ListBatchSize))
	params.Set("cmprop", "ids|title")

	if continueFrom != "" {
		params.Set("cmcontinue", continueFrom)
	}

	resp, err := c.apiRequest(ctx, params)
	if err != nil {
		return nil, "", err
	}

	query := getMap(resp["query"])
	if query == nil {
		return nil, "", &BadResponseError{Operation: "category members", Missing: "query"}
	}

	members := getSlice(query["categorymembers"])
	pages := make([]Page, 0, len(members))
	for _, m := range members {
		member := getMap(m)
		if member == nil {
			continue
		}
		pages = append(pages, Page{
			ID:    getInt64(member["pageid"]),
			Title: getString(member["title"]),
		})
	}

	var next string
	if cont := getMap(resp["continue"]); cont != nil {
		next = getString(cont["cmcontinue"])
	}

	return pages, next, nil
}

// AllPagesBatch returns one page of the wiki's full page listing for a
// namespace (0 is the main namespace) plus the continuation token for the
// next call ("" when exhausted).
func (c *Client) AllPagesBatch(ctx context.Context, namespace int, continueFrom string) ([]Page, string, error) {
	if err := c.EnsureLoggedIn(ctx); err != nil {
		return nil, "", err
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "allpages")
	params.Set("aplimit", strconv.Itoa(ListBatchSize))
	params.Set("apnamespace", strconv.Itoa(namespace))

	if continueFrom != "" {
		params.Set("apcontinue", continueFrom)
	}

	resp, err := c.apiRequest(ctx, params)
	if err != nil {
		return nil, "", err
	}

	query := getMap(resp["query"])
	if query == nil {
		return nil, "", &BadResponseError{Operation: "all pages", Missing: "query"}
	}

	allpages := getSlice(query["allpages"])
	pages := make([]Page, 0, len(allpages))
	for _, p := range allpages {
		page := getMap(p)
		if page == nil {
			continue
		}
		pages = append(pages, Page{
			ID:    getInt64(page["pageid"]),
			Title: getString(page["title"]),
		})
	}

	var next string
	if cont := getMap(resp["continue"]); cont != nil {
		next = getString(cont["apcontinue"])
	}

	return pages, next, nil
}

// NormalizeCategory ensures a category name carries its namespace prefix.
func NormalizeCategory(name string) string {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, "Category:") {
		name = "Category:" + name
	}
	return name
}
