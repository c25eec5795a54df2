package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/olgasafonova/git-remote-mediawiki/gitrepo"
	"github.com/olgasafonova/git-remote-mediawiki/internal/errors"
	"github.com/olgasafonova/git-remote-mediawiki/metrics"
	"github.com/olgasafonova/git-remote-mediawiki/wiki"
)

const (
	// pageExtension marks files in the git tree that correspond to wiki
	// pages. Anything else is not pushable.
	pageExtension = ".mw"

	// slashPlaceholder stands in for "/" in filenames so page titles with
	// slashes do not turn into directories.
	slashPlaceholder = "%2F"

	// emptyContent is the sentinel stored on the wiki for pages created
	// from empty files, since the API rejects truly empty page creation.
	emptyContent = "<!-- empty page -->\n"

	// deletedContent marks a page as deleted. Page deletion needs admin
	// rights most bot accounts lack, so deletion is modeled as an edit
	// replacing the content with this sentinel.
	deletedContent = "[[Category:Deleted]]\n"

	// emptyMessage substitutes for blank edit comments, which fast-import
	// will not accept as commit messages.
	emptyMessage = "*Empty MediaWiki Message*"

	// anonymousAuthor substitutes for revisions whose user was suppressed.
	anonymousAuthor = "Anonymous"
)

// forbiddenChars are rejected by MediaWiki in page titles; they are
// escaped in filenames so such filenames survive the round trip.
const forbiddenChars = `[]{}|`

// titleToPath converts a wiki page title into its filename in the git
// tree: slashes and spaces become placeholders, forbidden characters are
// hex-escaped, and the page extension is appended.
func titleToPath(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r == '/':
			b.WriteString(slashPlaceholder)
		case r == ' ':
			b.WriteByte('_')
		case strings.ContainsRune(forbiddenChars, r):
			fmt.Fprintf(&b, "_%%_%02x", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String() + pageExtension
}

// pathToTitle reverses titleToPath. The second return is false when the
// filename does not carry the page extension and cannot map to a page.
func pathToTitle(path string) (string, bool) {
	name, ok := strings.CutSuffix(path, pageExtension)
	if !ok {
		return "", false
	}
	var b strings.Builder
	for i := 0; i < len(name); {
		if name[i] == '_' {
			if i+5 <= len(name) && name[i+1] == '%' && name[i+2] == '_' {
				if c, err := strconv.ParseUint(name[i+3:i+5], 16, 8); err == nil {
					b.WriteByte(byte(c))
					i += 5
					continue
				}
			}
			b.WriteByte(' ')
			i++
			continue
		}
		b.WriteByte(name[i])
		i++
	}
	return strings.ReplaceAll(b.String(), slashPlaceholder, "/"), true
}

// smudgeContent converts wiki page text into file content: the empty-page
// sentinel becomes an empty file, everything else gets exactly the
// newline termination git blobs conventionally carry.
func smudgeContent(content string) string {
	if isSentinel(content, emptyContent) {
		return ""
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content
}

// cleanContent converts file content into wiki page text: trailing
// whitespace is trimmed (the wiki strips it anyway, which would make
// every subsequent import appear modified) and a creation of an empty
// file substitutes the empty-page sentinel.
func cleanContent(content string, created bool) string {
	text := strings.TrimRight(content, " \t\r\n")
	if text == "" && created {
		text = strings.TrimSuffix(emptyContent, "\n")
	}
	return text + "\n"
}

// isSentinel compares page content against a sentinel value, tolerating
// the wiki's own trailing-newline normalization.
func isSentinel(content, sentinel string) bool {
	return strings.TrimRight(content, "\n") == strings.TrimRight(sentinel, "\n")
}

// Edit outcomes.
type editStatus int

const (
	editOK editStatus = iota
	editSkipped
	editConflict
)

// pushFile translates one changed path of a commit into a wiki edit.
// baseRev is the wiki revision the commit's parent corresponds to; the
// returned revision id replaces it when the edit lands (a skipped or
// null edit keeps it).
func (s *Session) pushFile(ctx context.Context, d gitrepo.DiffEntry, summary string, baseRev int64) (int64, editStatus, error) {
	title, ok := pathToTitle(d.Path)
	if !ok {
		s.Log.Warn("Skipping file without wiki page extension; only page files can be pushed",
			"path", d.Path)
		return baseRev, editSkipped, nil
	}

	var text string
	switch {
	case d.IsDeletion():
		text = cleanContent(deletedContent, false)
	default:
		content, err := s.Repo.BlobContent(ctx, d.NewBlob)
		if err != nil {
			return baseRev, editOK, err
		}
		text = cleanContent(content, d.IsCreation())
	}

	res, err := s.Wiki.Edit(ctx, wiki.EditRequest{
		Title:         title,
		Text:          text,
		Summary:       summary,
		BaseTimestamp: s.baseTimestamps[baseRev],
	})
	if err != nil {
		if IsEditConflict(err) {
			metrics.PushConflicts.Inc()
			s.Log.Error("Edit conflict on wiki page; pull and merge before pushing again",
				"title", title)
			return baseRev, editConflict, nil
		}
		return baseRev, editOK, errors.WrapNetwork("edit "+title, err)
	}

	s.Log.Info("Pushed file to wiki", "path", d.Path, "title", title, "revision", res.NewRevID)
	if res.NewRevID == 0 {
		// Null edit: the wiki already had this exact content.
		return baseRev, editOK, nil
	}
	return res.NewRevID, editOK, nil
}
