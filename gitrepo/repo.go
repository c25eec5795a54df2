package gitrepo

import (
	"context"
	"fmt"
	"strings"
)

// NullBlobID is the all-zero blob id git uses in raw diff output for the
// absent side of a creation or deletion.
const NullBlobID = "0000000000000000000000000000000000000000"

// DiffEntry is one changed path between two trees.
type DiffEntry struct {
	// OldBlob and NewBlob are full blob ids; NullBlobID marks the absent
	// side (creation has no old blob, deletion no new blob).
	OldBlob string
	NewBlob string
	Path    string
}

// IsCreation reports whether the entry introduces a new path.
func (d DiffEntry) IsCreation() bool { return d.OldBlob == NullBlobID }

// IsDeletion reports whether the entry removes a path.
func (d DiffEntry) IsDeletion() bool { return d.NewBlob == NullBlobID }

// Repo provides access to one local git repository through its plumbing
// commands. All methods block until the command returns.
type Repo struct {
	dir  string
	exec CommandExecutor

	// childLists caches rev-list --children output per tip for the
	// duration of one helper session.
	childLists map[string]map[string][]string
}

// New creates a Repo rooted at dir ("" means the process working
// directory, which is where git runs remote helpers).
func New(dir string) *Repo {
	return &Repo{dir: dir, exec: CLIExecutor{}, childLists: make(map[string]map[string][]string)}
}

// NewWithExecutor creates a Repo with a custom executor, for tests.
func NewWithExecutor(dir string, exec CommandExecutor) *Repo {
	return &Repo{dir: dir, exec: exec, childLists: make(map[string]map[string][]string)}
}

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	out, err := r.exec.Run(ctx, r.dir, "git", args...)
	return string(out), err
}

// ResolveRef resolves a ref to a full commit id.
func (r *Repo) ResolveRef(ctx context.Context, ref string) (string, error) {
	out, err := r.git(ctx, "rev-parse", "--verify", "--quiet", ref)
	if err != nil {
		return "", fmt.Errorf("cannot resolve %s: %w", ref, err)
	}
	return strings.TrimSpace(out), nil
}

// RefExists reports whether the fully qualified ref exists.
func (r *Repo) RefExists(ctx context.Context, ref string) bool {
	_, err := r.git(ctx, "show-ref", "--verify", "--quiet", ref)
	return err == nil
}

// ConfigGet returns the value of a config key, or "" when unset.
func (r *Repo) ConfigGet(ctx context.Context, key string) string {
	out, err := r.git(ctx, "config", "--get", key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// ConfigGetAll returns all values of a multi-valued config key.
func (r *Repo) ConfigGetAll(ctx context.Context, key string) []string {
	out, err := r.git(ctx, "config", "--get-all", key)
	if err != nil {
		return nil
	}
	var values []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			values = append(values, line)
		}
	}
	return values
}

// ConfigBool returns a boolean config value, or def when unset.
func (r *Repo) ConfigBool(ctx context.Context, key string, def bool) bool {
	out, err := r.git(ctx, "config", "--type=bool", "--get", key)
	if err != nil {
		return def
	}
	return strings.TrimSpace(out) == "true"
}

// CommitChildren returns the children of commit along the first-parent
// chain of tip. Restricting the traversal to first parents keeps the
// child map linear even below a merge; a commit reachable only through
// a second-parent edge is reported unreachable. The underlying rev-list
// pass is cached per tip, so walking a chain of n commits costs one
// graph traversal, not n.
func (r *Repo) CommitChildren(ctx context.Context, tip, commit string) ([]string, error) {
	children, ok := r.childLists[tip]
	if !ok {
		out, err := r.git(ctx, "rev-list", "--first-parent", "--children", tip)
		if err != nil {
			return nil, fmt.Errorf("cannot list children below %s: %w", tip, err)
		}
		children = make(map[string][]string)
		for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			children[fields[0]] = fields[1:]
		}
		r.childLists[tip] = children
	}

	kids, ok := children[commit]
	if !ok {
		return nil, fmt.Errorf("commit %s is not reachable from %s", commit, tip)
	}
	return kids, nil
}

// FirstParentHistory returns the first-parent chain of ref, oldest first.
func (r *Repo) FirstParentHistory(ctx context.Context, ref string) ([]string, error) {
	out, err := r.git(ctx, "rev-list", "--first-parent", "--reverse", ref)
	if err != nil {
		return nil, fmt.Errorf("cannot linearize history of %s: %w", ref, err)
	}
	var commits []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			commits = append(commits, line)
		}
	}
	return commits, nil
}

// DiffTree lists the paths changed between parent and commit, additions,
// deletions and modifications only. An empty parent diffs commit against
// the empty tree (root commit).
func (r *Repo) DiffTree(ctx context.Context, parent, commit string) ([]DiffEntry, error) {
	// -z separates records with NUL and disables path quoting, so paths
	// with non-ASCII bytes come back verbatim instead of C-quoted.
	args := []string{"diff-tree", "-r", "-z", "--raw", "--full-index", "--diff-filter=ADM"}
	if parent == "" {
		args = append(args, "--root", commit)
	} else {
		args = append(args, parent, commit)
	}

	out, err := r.git(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot diff %s against %s: %w", commit, parent, err)
	}

	// Records alternate between metadata and path; --root additionally
	// prints the commit id as its own record, which the ":" check skips.
	var entries []DiffEntry
	tokens := strings.Split(out, "\x00")
	for i := 0; i+1 < len(tokens); i++ {
		if !strings.HasPrefix(tokens[i], ":") {
			continue
		}
		fields := strings.Fields(tokens[i])
		if len(fields) < 5 {
			continue
		}
		i++
		entries = append(entries, DiffEntry{
			OldBlob: fields[2],
			NewBlob: fields[3],
			Path:    tokens[i],
		})
	}
	return entries, nil
}

// BlobContent returns the content of a blob.
func (r *Repo) BlobContent(ctx context.Context, blobID string) (string, error) {
	out, err := r.git(ctx, "cat-file", "blob", blobID)
	if err != nil {
		return "", fmt.Errorf("cannot read blob %s: %w", blobID, err)
	}
	return out, nil
}

// CommitSummary returns the first line of a commit's message.
func (r *Repo) CommitSummary(ctx context.Context, commit string) (string, error) {
	out, err := r.git(ctx, "log", "--format=%s", "-1", commit)
	if err != nil {
		return "", fmt.Errorf("cannot read summary of %s: %w", commit, err)
	}
	return strings.TrimSpace(out), nil
}

// NoteFor returns the note attached to commit under notesRef, or "" when
// the commit carries no note.
func (r *Repo) NoteFor(ctx context.Context, notesRef, commit string) (string, error) {
	if !r.RefExists(ctx, notesRef) {
		return "", nil
	}
	out, err := r.git(ctx, "notes", "--ref="+notesRef, "show", commit)
	if err != nil {
		// git notes show exits non-zero for commits without a note.
		if strings.Contains(err.Error(), "no note found") {
			return "", nil
		}
		return "", fmt.Errorf("cannot read note for %s: %w", commit, err)
	}
	return out, nil
}

// AppendNote appends a provenance note to commit under notesRef.
func (r *Repo) AppendNote(ctx context.Context, notesRef, commit, message string) error {
	_, err := r.git(ctx, "notes", "--ref="+notesRef, "append", "-m", message, commit)
	if err != nil {
		return fmt.Errorf("cannot append note to %s: %w", commit, err)
	}
	return nil
}

// UpdateRef moves ref to point at commit, recording reason in the reflog.
func (r *Repo) UpdateRef(ctx context.Context, ref, commit, reason string) error {
	_, err := r.git(ctx, "update-ref", "-m", reason, ref, commit)
	if err != nil {
		return fmt.Errorf("cannot update %s: %w", ref, err)
	}
	return nil
}
