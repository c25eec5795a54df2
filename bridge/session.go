// Package bridge implements the synchronization engine between a git
// repository and a MediaWiki page store: resolving the tracked page set,
// streaming wiki revisions as fast-import commits, and replaying local
// commits as wiki edits.
package bridge

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/olgasafonova/git-remote-mediawiki/gitrepo"
	"github.com/olgasafonova/git-remote-mediawiki/wiki"
)

// Branch is the single branch this helper supports on both sides.
const Branch = "master"

// Wiki is the narrow surface of the MediaWiki client the engine consumes.
// *wiki.Client satisfies it.
type Wiki interface {
	Host() string
	PagesByTitles(ctx context.Context, titles []string) ([]wiki.Page, []string, error)
	CategoryMembersBatch(ctx context.Context, category, continueFrom string) ([]wiki.Page, string, error)
	AllPagesBatch(ctx context.Context, namespace int, continueFrom string) ([]wiki.Page, string, error)
	RevisionRangeBatch(ctx context.Context, pageID, startRev int64, continueFrom string) ([]wiki.RevisionRef, string, error)
	LatestRevision(ctx context.Context, pageID int64) (wiki.RevisionRef, error)
	RecentChangesBatch(ctx context.Context, continueFrom string) ([]wiki.RevisionRef, string, error)
	Revision(ctx context.Context, revID int64) (wiki.Revision, error)
	Edit(ctx context.Context, req wiki.EditRequest) (wiki.EditResult, error)
}

// Repository is the narrow surface of the local git repository the engine
// consumes. *gitrepo.Repo satisfies it.
type Repository interface {
	ResolveRef(ctx context.Context, ref string) (string, error)
	RefExists(ctx context.Context, ref string) bool
	ConfigGet(ctx context.Context, key string) string
	ConfigGetAll(ctx context.Context, key string) []string
	ConfigBool(ctx context.Context, key string, def bool) bool
	CommitChildren(ctx context.Context, tip, commit string) ([]string, error)
	FirstParentHistory(ctx context.Context, ref string) ([]string, error)
	DiffTree(ctx context.Context, parent, commit string) ([]gitrepo.DiffEntry, error)
	BlobContent(ctx context.Context, blobID string) (string, error)
	CommitSummary(ctx context.Context, commit string) (string, error)
	NoteFor(ctx context.Context, notesRef, commit string) (string, error)
	AppendNote(ctx context.Context, notesRef, commit, message string) error
	UpdateRef(ctx context.Context, ref, commit, reason string) error
}

// Fetch strategies for discovering new revisions.
const (
	FetchByPage = "by_page" // per-page revision queries (default)
	FetchByRev  = "by_rev"  // wiki-wide recentchanges feed
)

// TrackingSpec describes which pages of the wiki this remote follows.
// When no source is configured, the whole main namespace is tracked.
type TrackingSpec struct {
	Titles     []string
	Categories []string
	Namespaces []int
}

// Session carries the process-lifetime state of one helper invocation:
// the remote's identity, its tracking configuration, and the working maps
// rebuilt on every run.
type Session struct {
	Remote string
	Wiki   Wiki
	Repo   Repository
	Log    *slog.Logger

	Tracking      TrackingSpec
	Shallow       bool
	DumbPush      bool
	FetchStrategy string

	// baseTimestamps maps revision ids seen this run to their timestamps,
	// supplying optimistic-concurrency tokens to edits.
	baseTimestamps map[int64]string

	// lastTimestamp advances monotonically to synthesize timestamps for
	// revisions the wiki returns without one.
	lastTimestamp int64
}

// NewSession builds a session for one remote, reading the per-remote
// tracking configuration from git config.
func NewSession(ctx context.Context, remote string, w Wiki, repo Repository, log *slog.Logger) *Session {
	s := &Session{
		Remote:         remote,
		Wiki:           w,
		Repo:           repo,
		Log:            log,
		baseTimestamps: make(map[int64]string),
	}

	prefix := "remote." + remote + "."

	for _, v := range repo.ConfigGetAll(ctx, prefix+"mwPages") {
		s.Tracking.Titles = append(s.Tracking.Titles, strings.Fields(v)...)
	}
	for _, v := range repo.ConfigGetAll(ctx, prefix+"mwCategories") {
		s.Tracking.Categories = append(s.Tracking.Categories, strings.Fields(v)...)
	}
	for _, v := range repo.ConfigGetAll(ctx, prefix+"mwNamespaces") {
		for _, field := range strings.Fields(v) {
			if ns, err := strconv.Atoi(field); err == nil {
				s.Tracking.Namespaces = append(s.Tracking.Namespaces, ns)
			} else {
				log.Warn("Ignoring non-numeric namespace id", "value", field)
			}
		}
	}

	s.Shallow = repo.ConfigBool(ctx, prefix+"shallow", false)

	s.DumbPush = repo.ConfigBool(ctx, prefix+"dumbPush",
		repo.ConfigBool(ctx, "mediawiki.dumbPush", false))

	s.FetchStrategy = repo.ConfigGet(ctx, prefix+"fetchStrategy")
	if s.FetchStrategy == "" {
		s.FetchStrategy = repo.ConfigGet(ctx, "mediawiki.fetchStrategy")
	}
	if s.FetchStrategy != FetchByRev {
		s.FetchStrategy = FetchByPage
	}

	return s
}

// ContentRef is the private ref holding the materialized wiki history.
func (s *Session) ContentRef() string {
	return "refs/mediawiki/" + s.Remote + "/" + Branch
}

// NotesRef is the ref holding provenance notes mapping commits to the
// source revision ids they correspond to.
func (s *Session) NotesRef() string {
	return "refs/notes/" + s.Remote + "/mediawiki"
}

// LastLocalRevision returns the highest wiki revision id already
// materialized locally, read from the provenance note of the content
// ref's head. Zero means nothing has been synchronized yet.
func (s *Session) LastLocalRevision(ctx context.Context) (int64, error) {
	if !s.Repo.RefExists(ctx, s.ContentRef()) {
		return 0, nil
	}
	head, err := s.Repo.ResolveRef(ctx, s.ContentRef())
	if err != nil {
		return 0, err
	}
	note, err := s.Repo.NoteFor(ctx, s.NotesRef(), head)
	if err != nil {
		return 0, err
	}
	return parseSourceRevision(note), nil
}

// sourceRevisionPrefix tags provenance notes with the wiki revision id a
// commit corresponds to.
const sourceRevisionPrefix = "source_revision: "

// parseSourceRevision extracts the revision id from a provenance note.
// Notes are appended to, so the last line wins.
func parseSourceRevision(note string) int64 {
	var rev int64
	for _, line := range strings.Split(note, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, sourceRevisionPrefix) {
			continue
		}
		if n, err := strconv.ParseInt(strings.TrimPrefix(line, sourceRevisionPrefix), 10, 64); err == nil {
			rev = n
		}
	}
	return rev
}

// commitTimestamp converts a wiki timestamp into epoch seconds for a
// commit, synthesizing a strictly increasing value when the wiki omits
// or mangles the timestamp.
func (s *Session) commitTimestamp(iso string) int64 {
	if iso != "" {
		if t, err := time.Parse(time.RFC3339, iso); err == nil {
			s.lastTimestamp = t.Unix()
			return s.lastTimestamp
		}
	}
	s.lastTimestamp++
	return s.lastTimestamp
}
