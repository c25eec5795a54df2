package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgasafonova/git-remote-mediawiki/wiki"
)

func twoPageWiki() (*fakeWiki, map[string]wiki.Page) {
	w := newFakeWiki()
	w.pages = []wiki.Page{{ID: 1, Title: "Alpha"}, {ID: 2, Title: "Beta"}}
	w.addRevision(wiki.Revision{PageID: 1, RevID: 10, Title: "Alpha", Timestamp: "2024-03-01T10:00:00Z"})
	w.addRevision(wiki.Revision{PageID: 2, RevID: 11, Title: "Beta", Timestamp: "2024-03-02T10:00:00Z"})
	w.addRevision(wiki.Revision{PageID: 1, RevID: 15, Title: "Alpha", Timestamp: "2024-03-03T10:00:00Z"})

	pages := map[string]wiki.Page{
		"Alpha": {ID: 1, Title: "Alpha"},
		"Beta":  {ID: 2, Title: "Beta"},
	}
	return w, pages
}

func revIDs(refs []wiki.RevisionRef) []int64 {
	ids := make([]int64, len(refs))
	for i, r := range refs {
		ids[i] = r.RevID
	}
	return ids
}

func TestFetchRevisionsOrdersAcrossPages(t *testing.T) {
	w, pages := twoPageWiki()
	s := newTestSession(w, newFakeRepo())

	refs, err := FetchRevisions(t.Context(), s, pages, 1)
	require.NoError(t, err)

	assert.Equal(t, []int64{10, 11, 15}, revIDs(refs),
		"revisions interleave across pages in wiki order")
}

func TestFetchRevisionsRespectsWatermark(t *testing.T) {
	w, pages := twoPageWiki()
	s := newTestSession(w, newFakeRepo())

	refs, err := FetchRevisions(t.Context(), s, pages, 11)
	require.NoError(t, err)

	assert.Equal(t, []int64{11, 15}, revIDs(refs))
}

func TestFetchRevisionsFollowsContinuation(t *testing.T) {
	w, pages := twoPageWiki()
	w.pageSize = 1
	s := newTestSession(w, newFakeRepo())

	refs, err := FetchRevisions(t.Context(), s, pages, 1)
	require.NoError(t, err)

	assert.Equal(t, []int64{10, 11, 15}, revIDs(refs),
		"single-entry batches must still yield the full range")
}

func TestFetchRevisionsShallow(t *testing.T) {
	w, pages := twoPageWiki()
	s := newTestSession(w, newFakeRepo())
	s.Shallow = true

	refs, err := FetchRevisions(t.Context(), s, pages, 1)
	require.NoError(t, err)

	assert.Equal(t, []int64{11, 15}, revIDs(refs),
		"shallow keeps only the newest revision of each page")
}

func TestFetchRevisionsByRecentChanges(t *testing.T) {
	w, pages := twoPageWiki()
	// An untracked page also shows up in the wiki-wide feed.
	w.addRevision(wiki.Revision{PageID: 99, RevID: 12, Title: "Noise", Timestamp: "2024-03-02T12:00:00Z"})

	s := newTestSession(w, newFakeRepo())
	s.FetchStrategy = FetchByRev

	refs, err := FetchRevisions(t.Context(), s, pages, 11)
	require.NoError(t, err)

	assert.Equal(t, []int64{11, 15}, revIDs(refs),
		"the change feed is filtered down to tracked pages and the watermark")
}
