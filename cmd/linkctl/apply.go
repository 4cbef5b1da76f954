package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"linkpage/api/internal/client"
	"linkpage/api/internal/editor"
	"linkpage/api/internal/pagefile"
)

const watchDebounce = 200 * time.Millisecond

// connector hands out a client with a usable access token. forceRefresh
// rotates the session regardless of the stored expiry.
type connector func(ctx context.Context, forceRefresh bool) (*client.Client, error)

func newApplyCmd(opts *options) *cobra.Command {
	var (
		file  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Make the server page match a page file",
		Long: `Apply loads the current page, edits the working copy to match the page file
and saves the difference. Items are matched by id; items without an id are
created and items missing from the file are deleted. With --watch the file is
re-applied whenever it changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("-f is required")
			}
			if _, err := opts.loadCredentials(); err != nil {
				return err
			}
			if !watch {
				return applyFile(cmd.Context(), opts.connect, file, cmd.OutOrStdout())
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watchFile(ctx, opts.connect, file, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Page file to apply")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-apply when the file changes")
	return cmd
}

// applyFile runs one load, apply, save cycle with a freshly connected client.
// A 401 refreshes the session once and starts the cycle again; it can only
// come from the load or the profile update, before any item was touched.
func applyFile(ctx context.Context, connect connector, path string, out io.Writer) error {
	page, err := pagefile.Load(path)
	if err != nil {
		return err
	}
	c, err := connect(ctx, false)
	if err != nil {
		return err
	}
	err = applyPage(ctx, c, page, path, out)
	if !errors.Is(err, editor.ErrUnauthenticated) {
		return err
	}
	slog.Debug("access token rejected, refreshing session")
	if c, err = connect(ctx, true); err != nil {
		return err
	}
	return applyPage(ctx, c, page, path, out)
}

// applyPage creates the profile from the page slug when the account has none.
func applyPage(ctx context.Context, c *client.Client, page pagefile.Page, path string, out io.Writer) error {
	ed := editor.New(c)
	err := ed.Load(ctx)
	if errors.Is(err, editor.ErrNoProfile) {
		if page.Slug == "" {
			return errors.New("this account has no profile yet: add a slug to the page file to create one")
		}
		if _, err := c.CreateProfile(ctx, page.Slug, initialFields(page.Profile)); err != nil {
			return fmt.Errorf("create profile %s: %w", page.Slug, err)
		}
		fmt.Fprintf(out, "Created profile %s\n", page.Slug)
		err = ed.Load(ctx)
	}
	if err != nil {
		return err
	}

	if slug := ed.Profile().Slug; page.Slug != "" && page.Slug != slug {
		slog.Warn("slug in page file ignored, slugs cannot change", "file", page.Slug, "profile", slug)
	}

	summary, err := pagefile.Apply(ed, page)
	if err != nil {
		return err
	}
	if !ed.Dirty() {
		fmt.Fprintln(out, "Page is up to date")
		return nil
	}
	slog.Debug("applying page", "file", path, "summary", summary.String())

	report, err := ed.Save(ctx)
	for _, phase := range report.Phases {
		slog.Debug("save phase", "phase", phase.Phase, "attempted", phase.Attempted, "succeeded", phase.Succeeded, "errors", len(phase.Errors))
	}
	if err != nil {
		return fmt.Errorf("save page: %w", err)
	}
	fmt.Fprintf(out, "Saved: %s\n", summary)
	return nil
}

func initialFields(p pagefile.Profile) editor.Fields {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return editor.Fields{
		DisplayName: deref(p.DisplayName),
		Bio:         deref(p.Bio),
		AvatarURL:   deref(p.AvatarURL),
		Theme:       deref(p.Theme),
	}
}

// watchFile applies path once and again after every burst of writes to it.
// The parent directory is watched because editors often replace the file
// instead of writing it in place. Every apply connects anew so the session
// is refreshed for as long as the watch runs.
func watchFile(ctx context.Context, connect connector, path string, out io.Writer) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	reapply := func() {
		if err := applyFile(ctx, connect, abs, out); err != nil {
			fmt.Fprintf(out, "Apply failed: %v\n", err)
		}
	}
	reapply()

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			slog.Debug("page file changed", "op", event.Op.String())
			timer.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch error", "error", err)
		case <-timer.C:
			reapply()
		}
	}
}
