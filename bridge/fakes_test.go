package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/olgasafonova/git-remote-mediawiki/gitrepo"
	"github.com/olgasafonova/git-remote-mediawiki/wiki"
)

// fakeWiki is an in-memory wiki. Batches paginate with pageSize entries
// per call when pageSize is set, using numeric continuation tokens, so
// tests can prove callers follow continuations.
type fakeWiki struct {
	host     string
	pages    []wiki.Page
	members  map[string][]wiki.Page // category -> members
	pageRevs map[int64][]wiki.RevisionRef
	content  map[int64]wiki.Revision
	changes  []wiki.RevisionRef
	pageSize int

	edits     []wiki.EditRequest
	editErr   map[string]error // title -> forced error
	nextRevID int64

	revisionCalls int
}

func newFakeWiki() *fakeWiki {
	return &fakeWiki{
		host:      "wiki.example.com",
		members:   make(map[string][]wiki.Page),
		pageRevs:  make(map[int64][]wiki.RevisionRef),
		content:   make(map[int64]wiki.Revision),
		editErr:   make(map[string]error),
		nextRevID: 100,
	}
}

// addRevision registers a page revision with full content.
func (f *fakeWiki) addRevision(rev wiki.Revision) {
	f.content[rev.RevID] = rev
	f.pageRevs[rev.PageID] = append(f.pageRevs[rev.PageID], wiki.RevisionRef{
		PageID:    rev.PageID,
		RevID:     rev.RevID,
		Timestamp: rev.Timestamp,
	})
	f.changes = append(f.changes, wiki.RevisionRef{
		PageID:    rev.PageID,
		RevID:     rev.RevID,
		Timestamp: rev.Timestamp,
	})
}

func (f *fakeWiki) Host() string { return f.host }

func (f *fakeWiki) PagesByTitles(ctx context.Context, titles []string) ([]wiki.Page, []string, error) {
	var found []wiki.Page
	var missing []string
	for _, title := range titles {
		match := false
		for _, p := range f.pages {
			if p.Title == title {
				found = append(found, p)
				match = true
				break
			}
		}
		if !match {
			missing = append(missing, title)
		}
	}
	return found, missing, nil
}

// paginate slices a full result set according to the continuation token.
func paginate[T any](all []T, continueFrom string, pageSize int) ([]T, string) {
	if pageSize <= 0 {
		return all, ""
	}
	start := 0
	if continueFrom != "" {
		start, _ = strconv.Atoi(continueFrom)
	}
	if start >= len(all) {
		return nil, ""
	}
	end := start + pageSize
	if end >= len(all) {
		return all[start:], ""
	}
	return all[start:end], strconv.Itoa(end)
}

func (f *fakeWiki) CategoryMembersBatch(ctx context.Context, category, continueFrom string) ([]wiki.Page, string, error) {
	batch, next := paginate(f.members[wiki.NormalizeCategory(category)], continueFrom, f.pageSize)
	return batch, next, nil
}

func (f *fakeWiki) AllPagesBatch(ctx context.Context, namespace int, continueFrom string) ([]wiki.Page, string, error) {
	if namespace != 0 {
		return nil, "", nil
	}
	batch, next := paginate(f.pages, continueFrom, f.pageSize)
	return batch, next, nil
}

func (f *fakeWiki) RevisionRangeBatch(ctx context.Context, pageID, startRev int64, continueFrom string) ([]wiki.RevisionRef, string, error) {
	var matching []wiki.RevisionRef
	for _, ref := range f.pageRevs[pageID] {
		if ref.RevID >= startRev {
			matching = append(matching, ref)
		}
	}
	batch, next := paginate(matching, continueFrom, f.pageSize)
	return batch, next, nil
}

func (f *fakeWiki) LatestRevision(ctx context.Context, pageID int64) (wiki.RevisionRef, error) {
	revs := f.pageRevs[pageID]
	if len(revs) == 0 {
		return wiki.RevisionRef{}, nil
	}
	return revs[len(revs)-1], nil
}

func (f *fakeWiki) RecentChangesBatch(ctx context.Context, continueFrom string) ([]wiki.RevisionRef, string, error) {
	batch, next := paginate(f.changes, continueFrom, f.pageSize)
	return batch, next, nil
}

func (f *fakeWiki) Revision(ctx context.Context, revID int64) (wiki.Revision, error) {
	f.revisionCalls++
	rev, ok := f.content[revID]
	if !ok {
		return wiki.Revision{}, fmt.Errorf("no such revision %d", revID)
	}
	return rev, nil
}

func (f *fakeWiki) Edit(ctx context.Context, req wiki.EditRequest) (wiki.EditResult, error) {
	if err := f.editErr[req.Title]; err != nil {
		return wiki.EditResult{}, err
	}
	f.edits = append(f.edits, req)
	f.nextRevID++
	return wiki.EditResult{Title: req.Title, NewRevID: f.nextRevID}, nil
}

// fakeRepo is an in-memory repository built around one linear history.
type fakeRepo struct {
	refs      map[string]string   // ref -> commit id
	config    map[string][]string // key -> values
	chain     []string            // first-parent history, oldest first
	diffs     map[string][]gitrepo.DiffEntry // "parent..commit"
	blobs     map[string]string
	summaries map[string]string
	notes     map[string]string // notesRef + "@" + commit -> note

	updatedRefs   []string
	appendedNotes []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		refs:      make(map[string]string),
		config:    make(map[string][]string),
		diffs:     make(map[string][]gitrepo.DiffEntry),
		blobs:     make(map[string]string),
		summaries: make(map[string]string),
		notes:     make(map[string]string),
	}
}

func diffKey(parent, commit string) string { return parent + ".." + commit }

func (r *fakeRepo) ResolveRef(ctx context.Context, ref string) (string, error) {
	if sha, ok := r.refs[ref]; ok {
		return sha, nil
	}
	return "", fmt.Errorf("cannot resolve %s", ref)
}

func (r *fakeRepo) RefExists(ctx context.Context, ref string) bool {
	_, ok := r.refs[ref]
	return ok
}

func (r *fakeRepo) ConfigGet(ctx context.Context, key string) string {
	values := r.config[key]
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

func (r *fakeRepo) ConfigGetAll(ctx context.Context, key string) []string {
	return r.config[key]
}

func (r *fakeRepo) ConfigBool(ctx context.Context, key string, def bool) bool {
	if v := r.ConfigGet(ctx, key); v != "" {
		return v == "true"
	}
	return def
}

func (r *fakeRepo) CommitChildren(ctx context.Context, tip, commit string) ([]string, error) {
	for i, c := range r.chain {
		if c != commit {
			continue
		}
		if i+1 < len(r.chain) {
			return []string{r.chain[i+1]}, nil
		}
		return nil, nil
	}
	return nil, fmt.Errorf("commit %s is not reachable from %s", commit, tip)
}

func (r *fakeRepo) FirstParentHistory(ctx context.Context, ref string) ([]string, error) {
	return r.chain, nil
}

func (r *fakeRepo) DiffTree(ctx context.Context, parent, commit string) ([]gitrepo.DiffEntry, error) {
	return r.diffs[diffKey(parent, commit)], nil
}

func (r *fakeRepo) BlobContent(ctx context.Context, blobID string) (string, error) {
	content, ok := r.blobs[blobID]
	if !ok {
		return "", fmt.Errorf("no such blob %s", blobID)
	}
	return content, nil
}

func (r *fakeRepo) CommitSummary(ctx context.Context, commit string) (string, error) {
	return r.summaries[commit], nil
}

func (r *fakeRepo) NoteFor(ctx context.Context, notesRef, commit string) (string, error) {
	return r.notes[notesRef+"@"+commit], nil
}

func (r *fakeRepo) AppendNote(ctx context.Context, notesRef, commit, message string) error {
	key := notesRef + "@" + commit
	if existing := r.notes[key]; existing != "" {
		r.notes[key] = existing + "\n" + message
	} else {
		r.notes[key] = message
	}
	r.appendedNotes = append(r.appendedNotes, commit+": "+message)
	return nil
}

func (r *fakeRepo) UpdateRef(ctx context.Context, ref, commit, reason string) error {
	r.refs[ref] = commit
	r.updatedRefs = append(r.updatedRefs, ref+" -> "+commit)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSession wires a session around the fakes without consulting
// git config.
func newTestSession(w *fakeWiki, r *fakeRepo) *Session {
	return &Session{
		Remote:         "origin",
		Wiki:           w,
		Repo:           r,
		Log:            testLogger(),
		FetchStrategy:  FetchByPage,
		baseTimestamps: make(map[int64]string),
	}
}
