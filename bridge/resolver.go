package bridge

import (
	"context"

	"github.com/olgasafonova/git-remote-mediawiki/internal/errors"
	"github.com/olgasafonova/git-remote-mediawiki/wiki"
)

// mainNamespace is the wiki's article namespace, tracked by default.
const mainNamespace = 0

// ResolvePages materializes the tracked page set for this run, querying
// the wiki fresh each time so renames and category changes are picked up.
// Pages reached through several tracking sources are deduplicated by
// title. With nothing configured the whole main namespace is tracked.
func ResolvePages(ctx context.Context, s *Session) (map[string]wiki.Page, error) {
	pages := make(map[string]wiki.Page)
	tracked := false

	if len(s.Tracking.Titles) > 0 {
		tracked = true
		found, missing, err := s.Wiki.PagesByTitles(ctx, s.Tracking.Titles)
		if err != nil {
			return nil, errors.WrapNetwork("resolve tracked pages", err)
		}
		for _, title := range missing {
			s.Log.Warn("Tracked page does not exist on the wiki; skipping", "title", title)
		}
		for _, p := range found {
			pages[p.Title] = p
		}
	}

	for _, category := range s.Tracking.Categories {
		tracked = true
		continueFrom := ""
		for {
			batch, next, err := s.Wiki.CategoryMembersBatch(ctx, category, continueFrom)
			if err != nil {
				return nil, errors.WrapNetwork("list category "+category, err)
			}
			for _, p := range batch {
				pages[p.Title] = p
			}
			if next == "" {
				break
			}
			continueFrom = next
		}
	}

	if len(s.Tracking.Namespaces) > 0 {
		tracked = true
		for _, ns := range s.Tracking.Namespaces {
			if err := listNamespace(ctx, s, ns, pages); err != nil {
				return nil, err
			}
		}
	}

	if !tracked {
		if err := listNamespace(ctx, s, mainNamespace, pages); err != nil {
			return nil, err
		}
	}

	s.Log.Debug("Resolved tracked page set", "pages", len(pages))
	return pages, nil
}

func listNamespace(ctx context.Context, s *Session, namespace int, pages map[string]wiki.Page) error {
	continueFrom := ""
	for {
		batch, next, err := s.Wiki.AllPagesBatch(ctx, namespace, continueFrom)
		if err != nil {
			return errors.WrapNetwork("list pages", err)
		}
		for _, p := range batch {
			pages[p.Title] = p
		}
		if next == "" {
			return nil
		}
		continueFrom = next
	}
}
