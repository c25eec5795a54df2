package bridge

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/olgasafonova/git-remote-mediawiki/internal/errors"
	"github.com/olgasafonova/git-remote-mediawiki/metrics"
	"github.com/olgasafonova/git-remote-mediawiki/wiki"
)

// Import streams the wiki history newer than the local high-water mark
// as a git fast-import stream on w. Each wiki revision becomes one
// commit on the content ref plus a provenance note recording its
// revision id, so an interrupted import resumes where it stopped.
func Import(ctx context.Context, s *Session, w io.Writer) error {
	pages, err := ResolvePages(ctx, s)
	if err != nil {
		return err
	}

	lastLocal, err := s.LastLocalRevision(ctx)
	if err != nil {
		return err
	}
	fetchFrom := lastLocal + 1

	refs, err := FetchRevisions(ctx, s, pages, fetchFrom)
	if err != nil {
		return err
	}

	if len(refs) == 0 {
		if fetchFrom == 1 {
			s.Log.Warn("The wiki has no revisions to import; the wiki may be empty or the tracked pages missing")
		} else {
			s.Log.Info("Already up to date with the wiki", "last_revision", lastLocal)
		}
		return nil
	}

	s.Log.Info("Importing revisions from wiki",
		"count", len(refs), "from", refs[0].RevID, "to", refs[len(refs)-1].RevID)

	notesExist := s.Repo.RefExists(ctx, s.NotesRef())

	for n, ref := range refs {
		rev, err := s.Wiki.Revision(ctx, ref.RevID)
		if err != nil {
			return errors.WrapNetwork(fmt.Sprintf("fetch revision %d", ref.RevID), err)
		}
		emitRevision(s, w, rev, n+1, lastLocal > 0, notesExist)
		metrics.RevisionsImported.Inc()
	}

	s.Log.Info("Import complete", "revisions", len(refs))
	return nil
}

// emitRevision writes one wiki revision as a content commit and its
// paired provenance note commit. n is the 1-based position in this
// stream and doubles as the fast-import mark.
func emitRevision(s *Session, w io.Writer, rev wiki.Revision, n int, incremental, notesExist bool) {
	author := rev.User
	if author == "" {
		author = anonymousAuthor
	}
	when := s.commitTimestamp(rev.Timestamp)
	committer := fmt.Sprintf("%s <%s@%s> %d +0000", author, author, s.Wiki.Host(), when)

	message := strings.TrimSpace(rev.Comment)
	if message == "" {
		message = emptyMessage
	}
	message += "\n"

	if n == 1 && !incremental {
		// Fresh clone: start the content ref from scratch.
		fmt.Fprintf(w, "reset %s\n", s.ContentRef())
	}

	fmt.Fprintf(w, "commit %s\n", s.ContentRef())
	fmt.Fprintf(w, "mark :%d\n", n)
	fmt.Fprintf(w, "committer %s\n", committer)
	emitData(w, message)
	if n == 1 && incremental {
		fmt.Fprintf(w, "from %s^0\n", s.ContentRef())
	}

	path := titleToPath(rev.Title)
	if isSentinel(rev.Content, deletedContent) {
		fmt.Fprintf(w, "D %s\n", path)
	} else {
		fmt.Fprintf(w, "M 644 inline %s\n", path)
		emitData(w, smudgeContent(rev.Content))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "commit %s\n", s.NotesRef())
	fmt.Fprintf(w, "committer %s\n", committer)
	emitData(w, "Note added during import\n")
	if n == 1 && notesExist {
		fmt.Fprintf(w, "from %s^0\n", s.NotesRef())
	}
	fmt.Fprintf(w, "N inline :%d\n", n)
	emitData(w, fmt.Sprintf("%s%d\n", sourceRevisionPrefix, rev.RevID))
	fmt.Fprintln(w)
}

// emitData writes a fast-import data block: a byte count then the raw
// payload.
func emitData(w io.Writer, content string) {
	fmt.Fprintf(w, "data %d\n%s", len(content), content)
}
