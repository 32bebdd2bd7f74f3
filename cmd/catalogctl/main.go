// Package main is the operator CLI for catalogs and the Messenger profile.
//
//	catalogctl validate <file>
//	catalogctl push [-if-match etag] <file>
//	catalogctl profile sync|clear [file]
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/garyellow/menubot-go/internal/catalog"
	"github.com/garyellow/menubot-go/internal/config"
	domerrors "github.com/garyellow/menubot-go/internal/errors"
	"github.com/garyellow/menubot-go/internal/logger"
	"github.com/garyellow/menubot-go/internal/messenger"
	"github.com/garyellow/menubot-go/internal/r2client"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const usage = `usage:
  catalogctl validate <file>
  catalogctl push [-if-match etag] <file>
  catalogctl profile sync|clear [file]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return exitUsage
	}

	switch args[0] {
	case "validate":
		if len(args) != 2 {
			_, _ = fmt.Fprint(stderr, usage)
			return exitUsage
		}
		return validate(ctx, args[1], stdout, stderr)
	case "push":
		return push(ctx, args[1:], stdout, stderr)
	case "profile":
		return profile(ctx, args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return exitUsage
	}
}

// load reads and compiles a catalog file. Integrity defects are printed one per line.
func load(ctx context.Context, path string, stderr io.Writer) (*catalog.Snapshot, *catalog.Catalog, bool) {
	snap, err := catalog.FileSource{Path: path}.Fetch(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "read: %v\n", err)
		return nil, nil, false
	}

	cat, err := catalog.Compile(snap.Data, snap.Format)
	if err != nil {
		defects := domerrors.IntegrityErrors(err)
		if len(defects) == 0 {
			_, _ = fmt.Fprintf(stderr, "invalid: %v\n", err)
			return nil, nil, false
		}
		for _, d := range defects {
			_, _ = fmt.Fprintf(stderr, "  ✗ %v\n", d)
		}
		_, _ = fmt.Fprintf(stderr, "%d defect(s) in %s\n", len(defects), path)
		return nil, nil, false
	}
	return snap, cat, true
}

func validate(ctx context.Context, path string, stdout, stderr io.Writer) int {
	_, cat, ok := load(ctx, path, stderr)
	if !ok {
		return exitFailure
	}
	_, _ = fmt.Fprintf(stdout, "✓ %s: version %s, %d triggers, %d responses\n",
		path, cat.Version(), len(cat.Triggers()), len(cat.Responses()))
	return exitOK
}

func push(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ifMatch := fs.String("if-match", "", "only replace the object if its current ETag matches")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		_, _ = fmt.Fprint(stderr, usage)
		return exitUsage
	}
	path := fs.Arg(0)

	snap, cat, ok := load(ctx, path, stderr)
	if !ok {
		_, _ = fmt.Fprintln(stderr, "refusing to push an invalid catalog")
		return exitFailure
	}

	cfg, err := config.LoadForMode(config.PublishMode)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitFailure
	}
	if catalog.FormatFromPath(cfg.CatalogR2.Key) != snap.Format {
		_, _ = fmt.Fprintf(stderr, "%s and object key %s use different formats\n", path, cfg.CatalogR2.Key)
		return exitFailure
	}

	compressed, err := r2client.Compress(snap.Data)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitFailure
	}

	client, err := r2client.New(ctx, r2client.Config{
		Endpoint:    cfg.CatalogR2.EndpointURL(),
		AccessKeyID: cfg.CatalogR2.AccessKeyID,
		SecretKey:   cfg.CatalogR2.SecretAccessKey,
		BucketName:  cfg.CatalogR2.BucketName,
	})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitFailure
	}

	etag, err := client.Upload(ctx, cfg.CatalogR2.Key, bytes.NewReader(compressed), "application/zstd", *ifMatch)
	if errors.Is(err, r2client.ErrPreconditionFailed) {
		_, _ = fmt.Fprintf(stderr, "%s changed since %s; fetch and retry\n", cfg.CatalogR2.Key, *ifMatch)
		return exitFailure
	}
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitFailure
	}

	_, _ = fmt.Fprintf(stdout, "✓ pushed version %s to %s/%s (%d → %d bytes, etag %s)\n",
		cat.Version(), client.Bucket(), cfg.CatalogR2.Key, len(snap.Data), len(compressed), etag)
	return exitOK
}

func profile(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || len(args) > 2 || (args[0] != "sync" && args[0] != "clear") {
		_, _ = fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cfg, err := config.LoadForMode(config.ProfileMode)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitFailure
	}

	client, err := messenger.New(messenger.Config{
		BaseURL:         cfg.GraphAPIBaseURL,
		Version:         cfg.GraphAPIVersion,
		PageAccessToken: cfg.PageAccessToken,
		AppSecret:       cfg.AppSecret,
		Logger:          logger.NewWithWriter(cfg.LogLevel, stderr),
	})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitFailure
	}

	if args[0] == "clear" {
		if err := client.DeleteProfileFields(ctx); err != nil {
			_, _ = fmt.Fprintf(stderr, "clear profile: %v\n", err)
			return exitFailure
		}
		_, _ = fmt.Fprintf(stdout, "✓ cleared %v\n", messenger.AllProfileFields)
		return exitOK
	}

	path := cfg.CatalogPath
	if len(args) == 2 {
		path = args[1]
	}
	var cat *catalog.Catalog
	if path == "" {
		var ok bool
		if cat, ok = compileEmbedded(ctx, stderr); !ok {
			return exitFailure
		}
	} else {
		var ok bool
		if _, cat, ok = load(ctx, path, stderr); !ok {
			return exitFailure
		}
	}

	if err := client.ApplyProfile(ctx, cat.Profile()); err != nil {
		_, _ = fmt.Fprintf(stderr, "sync profile: %v\n", err)
		return exitFailure
	}
	_, _ = fmt.Fprintf(stdout, "✓ profile synced from catalog version %s\n", cat.Version())
	return exitOK
}

func compileEmbedded(ctx context.Context, stderr io.Writer) (*catalog.Catalog, bool) {
	snap, err := catalog.EmbeddedSource{}.Fetch(ctx)
	if err == nil {
		var cat *catalog.Catalog
		if cat, err = catalog.Compile(snap.Data, snap.Format); err == nil {
			return cat, true
		}
	}
	_, _ = fmt.Fprintf(stderr, "embedded catalog: %v\n", err)
	return nil, false
}
