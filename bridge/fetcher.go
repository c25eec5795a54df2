package bridge

import (
	"context"
	"sort"

	"github.com/olgasafonova/git-remote-mediawiki/internal/errors"
	"github.com/olgasafonova/git-remote-mediawiki/wiki"
)

// FetchRevisions collects every revision of the tracked pages with id >=
// fetchFrom, sorted ascending by revision id across all pages so history
// is replayed in wiki order. In shallow mode only the latest revision of
// each page is returned.
func FetchRevisions(ctx context.Context, s *Session, pages map[string]wiki.Page, fetchFrom int64) ([]wiki.RevisionRef, error) {
	var refs []wiki.RevisionRef
	var err error

	switch {
	case s.Shallow:
		refs, err = fetchLatest(ctx, s, pages, fetchFrom)
	case s.FetchStrategy == FetchByRev:
		refs, err = fetchByRecentChanges(ctx, s, pages, fetchFrom)
	default:
		refs, err = fetchByPage(ctx, s, pages, fetchFrom)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].RevID < refs[j].RevID })
	return refs, nil
}

// fetchByPage walks each tracked page's revision range, following
// continuation tokens until each page is exhausted.
func fetchByPage(ctx context.Context, s *Session, pages map[string]wiki.Page, fetchFrom int64) ([]wiki.RevisionRef, error) {
	var refs []wiki.RevisionRef
	for _, p := range pages {
		continueFrom := ""
		for {
			batch, next, err := s.Wiki.RevisionRangeBatch(ctx, p.ID, fetchFrom, continueFrom)
			if err != nil {
				return nil, errors.WrapNetwork("fetch revisions of "+p.Title, err)
			}
			refs = append(refs, batch...)
			if next == "" {
				break
			}
			continueFrom = next
		}
	}
	return refs, nil
}

// fetchLatest keeps only the newest revision of each page, skipping
// pages already at or below the local high-water mark.
func fetchLatest(ctx context.Context, s *Session, pages map[string]wiki.Page, fetchFrom int64) ([]wiki.RevisionRef, error) {
	var refs []wiki.RevisionRef
	for _, p := range pages {
		ref, err := s.Wiki.LatestRevision(ctx, p.ID)
		if err != nil {
			return nil, errors.WrapNetwork("fetch latest revision of "+p.Title, err)
		}
		if ref.RevID >= fetchFrom {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// fetchByRecentChanges reads the wiki-wide change feed instead of
// querying page by page, which is far cheaper on wikis where the tracked
// set is large but mostly idle. Entries for untracked pages are dropped.
func fetchByRecentChanges(ctx context.Context, s *Session, pages map[string]wiki.Page, fetchFrom int64) ([]wiki.RevisionRef, error) {
	tracked := make(map[int64]bool, len(pages))
	for _, p := range pages {
		tracked[p.ID] = true
	}

	var refs []wiki.RevisionRef
	continueFrom := ""
	for {
		batch, next, err := s.Wiki.RecentChangesBatch(ctx, continueFrom)
		if err != nil {
			return nil, errors.WrapNetwork("fetch recent changes", err)
		}
		for _, ref := range batch {
			if ref.RevID >= fetchFrom && tracked[ref.PageID] {
				refs = append(refs, ref)
			}
		}
		if next == "" {
			return refs, nil
		}
		continueFrom = next
	}
}
