package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/olgasafonova/git-remote-mediawiki/internal/errors"
	"github.com/olgasafonova/git-remote-mediawiki/tracing"
)

// commandKind enumerates the remote-helper commands this helper speaks.
type commandKind int

const (
	cmdCapabilities commandKind = iota
	cmdList
	cmdOption
	cmdImport
	cmdPush
)

// commandSpec fixes the argument arity of each command so malformed
// lines are rejected before any work starts.
type commandSpec struct {
	kind    commandKind
	minArgs int
	maxArgs int
}

var commands = map[string]commandSpec{
	"capabilities": {cmdCapabilities, 0, 0},
	"list":         {cmdList, 0, 1}, // "list" or "list for-push"
	"option":       {cmdOption, 1, 2},
	"import":       {cmdImport, 1, 1},
	"push":         {cmdPush, 1, 1},
}

// Dispatcher runs the git remote-helper line protocol: commands arrive
// one per line on in, responses leave on out. git is the only intended
// peer, so any deviation from the protocol is treated as fatal.
type Dispatcher struct {
	sess *Session
	in   *bufio.Scanner
	out  *bufio.Writer
}

func NewDispatcher(s *Session, in io.Reader, out io.Writer) *Dispatcher {
	return &Dispatcher{
		sess: s,
		in:   bufio.NewScanner(in),
		out:  bufio.NewWriter(out),
	}
}

// Run reads commands until git closes the stream or sends a blank line
// outside a batch. Import and push commands arrive in batches terminated
// by a blank line and are processed together.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		line, eof := d.readLine()
		if eof || line == "" {
			return d.out.Flush()
		}

		name, args, spec, err := parseCommand(line)
		if err != nil {
			return err
		}

		switch spec.kind {
		case cmdCapabilities:
			d.capabilities()
		case cmdList:
			d.list()
		case cmdOption:
			// No helper options are honored; git falls back to defaults.
			fmt.Fprintln(d.out, "unsupported")
		case cmdImport:
			batch, err := d.collectBatch(name, args[0])
			if err != nil {
				return err
			}
			if err := d.doImport(ctx, batch); err != nil {
				return err
			}
		case cmdPush:
			batch, err := d.collectBatch(name, args[0])
			if err != nil {
				return err
			}
			if err := d.doPush(ctx, batch); err != nil {
				return err
			}
		}

		if err := d.out.Flush(); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) readLine() (string, bool) {
	if !d.in.Scan() {
		return "", true
	}
	return strings.TrimRight(d.in.Text(), "\r\n"), false
}

func parseCommand(line string) (string, []string, commandSpec, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, commandSpec{}, &errors.ProtocolError{Line: line, Message: "blank command"}
	}
	name := fields[0]
	args := fields[1:]

	spec, ok := commands[name]
	if !ok {
		return "", nil, commandSpec{}, &errors.ProtocolError{Line: line, Message: "unknown command"}
	}
	if len(args) < spec.minArgs || len(args) > spec.maxArgs {
		return "", nil, commandSpec{}, &errors.ProtocolError{
			Line:    line,
			Message: fmt.Sprintf("expected between %d and %d arguments, got %d", spec.minArgs, spec.maxArgs, len(args)),
		}
	}
	return name, args, spec, nil
}

// collectBatch gathers the consecutive lines repeating the same command,
// stopping at the blank terminator.
func (d *Dispatcher) collectBatch(name, first string) ([]string, error) {
	batch := []string{first}
	for {
		line, eof := d.readLine()
		if eof || line == "" {
			return batch, nil
		}
		arg, ok := strings.CutPrefix(line, name+" ")
		if !ok {
			return nil, &errors.ProtocolError{Line: line, Message: "expected " + name + " or blank line"}
		}
		batch = append(batch, arg)
	}
}

func (d *Dispatcher) capabilities() {
	fmt.Fprintf(d.out, "refspec refs/heads/*:refs/mediawiki/%s/*\n", d.sess.Remote)
	fmt.Fprintln(d.out, "import")
	fmt.Fprintln(d.out, "list")
	fmt.Fprintln(d.out, "push")
	fmt.Fprintln(d.out)
}

// list advertises the single branch a wiki maps to. The "?" value tells
// git the sha is unknown; import will produce it.
func (d *Dispatcher) list() {
	fmt.Fprintf(d.out, "? refs/heads/%s\n", Branch)
	fmt.Fprintf(d.out, "@refs/heads/%s HEAD\n", Branch)
	fmt.Fprintln(d.out)
}

// doImport streams the wiki history once, regardless of how many refs
// git asked for: every ref maps to the same content stream.
func (d *Dispatcher) doImport(ctx context.Context, refs []string) error {
	ctx, span := tracing.StartSpan(ctx, "import")
	defer span.End()

	d.sess.Log.Debug("Import requested", "refs", refs)
	if err := Import(ctx, d.sess, d.out); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	fmt.Fprintln(d.out, "done")
	return nil
}

// doPush processes each refspec of the batch, reporting per-ref success
// or failure. Recoverable failures are reported to git and the batch
// continues; transport failures abort the helper.
func (d *Dispatcher) doPush(ctx context.Context, refspecs []string) error {
	ctx, span := tracing.StartSpan(ctx, "push")
	defer span.End()

	for _, refspec := range refspecs {
		dst, err := Push(ctx, d.sess, refspec)
		switch {
		case err == nil:
			fmt.Fprintf(d.out, "ok %s\n", dst)
		case errors.IsNonFastForward(err):
			tracing.RecordError(span, err)
			fmt.Fprintf(d.out, "error %s \"non-fast-forward\"\n", dst)
		case errors.IsUnsupported(err) || errors.IsConfig(err) || errors.IsProtocol(err):
			tracing.RecordError(span, err)
			d.sess.Log.Error("Cannot push refspec", "refspec", refspec, "error", err)
			fmt.Fprintf(d.out, "error %s \"unsupported\"\n", dst)
		default:
			tracing.RecordError(span, err)
			return err
		}
	}
	fmt.Fprintln(d.out)
	return nil
}
