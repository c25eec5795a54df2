package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/olgasafonova/git-remote-mediawiki/internal/errors"
)

// planEntry is one commit to replay onto the wiki, diffed against its
// predecessor on the path being pushed.
type planEntry struct {
	Parent string // empty for a root commit
	Commit string
}

// Push replays the commits behind one refspec as wiki edits. The
// returned destination ref names the refspec's target even when the
// push fails, so the caller can report per-ref status.
//
// A recoverable failure (edit conflict, remote ahead, unsupported
// refspec shape) comes back as a typed error; transport failures are
// wrapped as network errors and should abort the whole batch.
func Push(ctx context.Context, s *Session, refspec string) (string, error) {
	force := strings.HasPrefix(refspec, "+")
	local, dst, ok := strings.Cut(strings.TrimPrefix(refspec, "+"), ":")
	if !ok {
		dst = refspec
		return dst, &errors.ProtocolError{Line: "push " + refspec, Message: "malformed refspec"}
	}

	switch {
	case local == "":
		return dst, &errors.UnsupportedError{
			What:   "ref deletion",
			Reason: "deleting wiki pages through ref deletion is not possible",
		}
	case dst != "refs/heads/"+Branch:
		return dst, &errors.UnsupportedError{
			What:   "push to " + dst,
			Reason: "only refs/heads/" + Branch + " can be pushed to a wiki",
		}
	case force:
		return dst, &errors.UnsupportedError{
			What:   "forced push",
			Reason: "the wiki keeps all revisions; rewriting its history is not possible",
		}
	}

	head, err := s.Repo.ResolveRef(ctx, local)
	if err != nil {
		return dst, &errors.ConfigError{Key: local, Message: "local ref does not resolve to a commit"}
	}

	lastRemote, err := remoteHighWaterMark(ctx, s)
	if err != nil {
		return dst, err
	}
	lastLocal, err := s.LastLocalRevision(ctx)
	if err != nil {
		return dst, err
	}
	if lastLocal > 0 && lastLocal < lastRemote {
		return dst, errors.NewNonFastForward(dst,
			fmt.Sprintf("the wiki is at revision %d but the local mirror stops at %d; pull first", lastRemote, lastLocal))
	}

	plan, upToDate, err := planPush(ctx, s, head, lastLocal, dst)
	if err != nil {
		return dst, err
	}
	if upToDate {
		s.Log.Info("Nothing to push; the wiki mirror is current")
		return dst, nil
	}

	currentRev := lastRemote
	for _, entry := range plan {
		currentRev, err = pushCommit(ctx, s, entry, currentRev, dst)
		if err != nil {
			return dst, err
		}
	}

	if s.DumbPush {
		s.Log.Warn("Pushed without provenance tracking; run git pull --rebase to resynchronize with the wiki")
	}
	return dst, nil
}

// remoteHighWaterMark finds the newest revision id across the tracked
// pages and records each page's latest timestamp for conflict detection
// on the edits that follow.
func remoteHighWaterMark(ctx context.Context, s *Session) (int64, error) {
	pages, err := ResolvePages(ctx, s)
	if err != nil {
		return 0, err
	}

	var last int64
	for _, p := range pages {
		ref, err := s.Wiki.LatestRevision(ctx, p.ID)
		if err != nil {
			return 0, errors.WrapNetwork("inspect latest revision of "+p.Title, err)
		}
		if ref.RevID == 0 {
			continue
		}
		s.baseTimestamps[ref.RevID] = ref.Timestamp
		if ref.RevID > last {
			last = ref.RevID
		}
	}
	return last, nil
}

// planPush decides which commits to replay. With local provenance the
// plan walks forward from the content ref's head to the push head, one
// first-parent child at a time; without it (a repository not cloned from
// this wiki, or dumb pushes so far) the entire first-parent history is
// replayed oldest first.
func planPush(ctx context.Context, s *Session, head string, lastLocal int64, dst string) ([]planEntry, bool, error) {
	if lastLocal > 0 {
		base, err := s.Repo.ResolveRef(ctx, s.ContentRef())
		if err != nil {
			return nil, false, err
		}
		if base == head {
			return nil, true, nil
		}

		var plan []planEntry
		for current := base; current != head; {
			children, err := s.Repo.CommitChildren(ctx, head, current)
			if err != nil || len(children) == 0 {
				return nil, false, errors.NewNonFastForward(dst,
					"the pushed history does not descend from the wiki mirror")
			}
			// The child map covers first-parent edges only, so each
			// commit on the path to head has exactly one child.
			next := children[0]
			plan = append(plan, planEntry{Parent: current, Commit: next})
			current = next
		}
		return plan, false, nil
	}

	s.Log.Warn("No synchronization point found; replaying the entire history onto the wiki")
	history, err := s.Repo.FirstParentHistory(ctx, head)
	if err != nil {
		return nil, false, err
	}
	if len(history) == 0 {
		return nil, true, nil
	}

	plan := make([]planEntry, len(history))
	parent := ""
	for i, commit := range history {
		plan[i] = planEntry{Parent: parent, Commit: commit}
		parent = commit
	}
	return plan, false, nil
}

// pushCommit replays one commit's changed files as edits, then records
// the new synchronization point unless dumb pushes are configured.
// currentRev threads the wiki revision the mirror corresponds to; each
// successful edit advances it.
func pushCommit(ctx context.Context, s *Session, entry planEntry, currentRev int64, dst string) (int64, error) {
	summary, err := s.Repo.CommitSummary(ctx, entry.Commit)
	if err != nil {
		return currentRev, err
	}
	diffs, err := s.Repo.DiffTree(ctx, entry.Parent, entry.Commit)
	if err != nil {
		return currentRev, err
	}

	for _, d := range diffs {
		rev, status, err := s.pushFile(ctx, d, summary, currentRev)
		if err != nil {
			return currentRev, err
		}
		if status == editConflict {
			return currentRev, errors.NewNonFastForward(dst,
				"edit conflict on the wiki; pull, merge, and push again")
		}
		currentRev = rev
	}

	if !s.DumbPush {
		note := fmt.Sprintf("%s%d", sourceRevisionPrefix, currentRev)
		if err := s.Repo.AppendNote(ctx, s.NotesRef(), entry.Commit, note); err != nil {
			return currentRev, err
		}
		if err := s.Repo.UpdateRef(ctx, s.ContentRef(), entry.Commit, "wiki push"); err != nil {
			return currentRev, err
		}
	}
	return currentRev, nil
}
