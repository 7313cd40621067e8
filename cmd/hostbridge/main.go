package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/hostbridge/classify"
	"github.com/wippyai/hostbridge/construct"
	"github.com/wippyai/hostbridge/dispatch"
	"github.com/wippyai/hostbridge/marshal"
	"github.com/wippyai/hostbridge/program"
	"github.com/wippyai/hostbridge/runtime"
	"github.com/wippyai/hostbridge/session"
)

func main() {
	var (
		progFile    = flag.String("program", "", "Path to program description (.yaml, .yml or .toml)")
		keyFormat   = flag.String("keys", marshal.KeyFormatCounter, "Identity key format (counter or uuid)")
		strict      = flag.Bool("strict", false, "Reject read-only identity key expressions during setup")
		manifestOut = flag.String("manifest", "", "Write a CBOR load manifest to this path")
		require     = flag.String("require", "", "Types to construct while collecting the manifest (comma-separated)")
		plain       = flag.Bool("plain", false, "Disable styled output")
		verbose     = flag.Bool("v", false, "Verbose logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *progFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: hostbridge -program <file> [-keys counter|uuid] [-strict] [-v]")
		fmt.Fprintln(os.Stderr, "       hostbridge -program <file> -manifest <out.cbor> [-require A,B]")
		fmt.Fprintln(os.Stderr, "       hostbridge -program <file> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		if err := setupLogging(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	opts := session.DefaultOptions()
	opts.KeyFormat = *keyFormat
	opts.StrictKeys = *strict

	if *interactive {
		if err := runInteractive(*progFile, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	styled := !*plain && term.IsTerminal(int(os.Stdout.Fd()))
	if err := run(*progFile, opts, *manifestOut, splitList(*require), styled); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging() error {
	l, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	classify.SetLogger(l.Named("classify"))
	construct.SetLogger(l.Named("construct"))
	dispatch.SetLogger(l.Named("dispatch"))
	marshal.SetLogger(l.Named("marshal"))
	runtime.SetLogger(l.Named("runtime"))
	session.SetLogger(l.Named("session"))
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setup(progFile string, opts session.Options) (*session.Session, *session.Plan, error) {
	prog, err := program.LoadFile(progFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load program: %w", err)
	}
	s := session.New(prog, opts)
	plan, err := s.Setup()
	if err != nil {
		return s, nil, err
	}
	return s, plan, nil
}

func run(progFile string, opts session.Options, manifestOut string, require []string, styled bool) error {
	if manifestOut != "" {
		opts.CollectOnly = true
	}

	s, plan, err := setup(progFile, opts)
	if err != nil {
		return err
	}

	r := newReport(s.Program(), styled)
	fmt.Print(r.render(progFile, plan))

	if manifestOut == "" {
		return nil
	}

	rt, err := s.Emit(plan, nil)
	if err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	for _, name := range require {
		if _, err := rt.Loader.RequireConstructed(name); err != nil {
			return fmt.Errorf("require %s: %w", name, err)
		}
	}
	m := rt.Loader.Manifest()
	if err := m.WriteFile(manifestOut); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	fmt.Printf("\nManifest: %s (%d entries)\n", manifestOut, m.Len())
	return nil
}
