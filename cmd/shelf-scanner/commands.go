package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/shelf-scanner/internal/pantry"
)

// command builds the root command and its subcommands
func (a *app) command() *ff.Command {
	return &ff.Command{
		Name:      "shelf-scanner",
		Usage:     "shelf-scanner [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "recognize food items in photos and track their shelf-life",
		Flags:     a.flags,
		Subcommands: []*ff.Command{
			a.serveCommand(),
			a.scanCommand(),
			a.historyCommand(),
			a.showCommand(),
			a.deleteCommand(),
			a.clearCommand(),
			a.exportCommand(),
		},
	}
}

func (a *app) serveCommand() *ff.Command {
	fs := ff.NewFlagSet("serve").SetParent(a.flags)
	var (
		port     = fs.IntLong("port", 8080, "HTTP server port")
		authUser = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
	)

	return &ff.Command{
		Name:      "serve",
		Usage:     "shelf-scanner serve [FLAGS]",
		ShortHelp: "run the HTTP API",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			setupLogging(*a.debug)

			service, closeAll, err := a.open(true)
			if err != nil {
				return err
			}
			defer closeAll()

			server := pantry.NewServer(service, pantry.BasicAuth{
				Username: *authUser,
				Password: *authPass,
			})

			addr := fmt.Sprintf(":%d", *port)
			errc := make(chan error, 1)
			go func() {
				errc <- server.Start(addr)
			}()

			slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
			if *authUser != "" || *authPass != "" {
				slog.Info("Basic auth enabled", "user", *authUser)
			}

			select {
			case err := <-errc:
				return fmt.Errorf("server error: %w", err)
			case <-ctx.Done():
				slog.Info("Shutting down...")
				return nil
			}
		},
	}
}

func (a *app) scanCommand() *ff.Command {
	fs := ff.NewFlagSet("scan").SetParent(a.flags)

	return &ff.Command{
		Name:      "scan",
		Usage:     "shelf-scanner scan [FLAGS] <FILE>",
		ShortHelp: "recognize the items in an image file and save the result",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("scan requires exactly one image file")
			}
			setupLogging(*a.debug)

			service, closeAll, err := a.open(true)
			if err != nil {
				return err
			}
			defer closeAll()

			data, readErr := os.ReadFile(args[0])
			result := service.Recognize(ctx, pantry.Capture{
				Filename: filepath.Base(args[0]),
				Data:     data,
				Err:      readErr,
			})

			if err := printJSON(os.Stdout, result); err != nil {
				return err
			}
			if result.Err != nil {
				return errors.New(result.Err.Message)
			}
			return nil
		},
	}
}

func (a *app) historyCommand() *ff.Command {
	fs := ff.NewFlagSet("history").SetParent(a.flags)
	var (
		search = fs.StringLong("search", "", "Only show records with an item name containing this text")
		limit  = fs.IntLong("limit", 0, "Maximum number of records to show (default: --read-limit)")
		asJSON = fs.BoolLong("json", "Print records as JSON")
	)

	return &ff.Command{
		Name:      "history",
		Usage:     "shelf-scanner history [FLAGS]",
		ShortHelp: "list saved recognitions, most recent first",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			setupLogging(*a.debug)

			service, closeAll, err := a.open(false)
			if err != nil {
				return err
			}
			defer closeAll()

			var records []*pantry.Record
			if *search != "" {
				records = service.Search(ctx, *search)
				if *limit > 0 && len(records) > *limit {
					records = records[:*limit]
				}
			} else {
				records = service.List(ctx, max(*limit, 0))
			}

			if *asJSON {
				return printJSON(os.Stdout, records)
			}
			return printTable(os.Stdout, records)
		},
	}
}

func (a *app) showCommand() *ff.Command {
	fs := ff.NewFlagSet("show").SetParent(a.flags)

	return &ff.Command{
		Name:      "show",
		Usage:     "shelf-scanner show <ID>",
		ShortHelp: "print a saved recognition",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("show requires a record ID")
			}
			setupLogging(*a.debug)

			service, closeAll, err := a.open(false)
			if err != nil {
				return err
			}
			defer closeAll()

			record, err := service.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, record)
		},
	}
}

func (a *app) deleteCommand() *ff.Command {
	fs := ff.NewFlagSet("delete").SetParent(a.flags)

	return &ff.Command{
		Name:      "delete",
		Usage:     "shelf-scanner delete <ID>",
		ShortHelp: "delete a saved recognition and its image",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("delete requires a record ID")
			}
			setupLogging(*a.debug)

			service, closeAll, err := a.open(false)
			if err != nil {
				return err
			}
			defer closeAll()

			if err := service.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Deleted %s\n", args[0])
			return nil
		},
	}
}

func (a *app) clearCommand() *ff.Command {
	fs := ff.NewFlagSet("clear").SetParent(a.flags)
	yes := fs.BoolLong("yes", "Confirm deleting every record")

	return &ff.Command{
		Name:      "clear",
		Usage:     "shelf-scanner clear --yes",
		ShortHelp: "delete every saved recognition",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if !*yes {
				return fmt.Errorf("refusing to clear history without --yes")
			}
			setupLogging(*a.debug)

			service, closeAll, err := a.open(false)
			if err != nil {
				return err
			}
			defer closeAll()

			if err := service.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "History cleared")
			return nil
		},
	}
}

func (a *app) exportCommand() *ff.Command {
	fs := ff.NewFlagSet("export").SetParent(a.flags)
	var (
		format = fs.StringLong("format", pantry.FormatJSON, "Export format: json or parquet")
		out    = fs.StringLong("out", "-", "Output file, - for stdout")
	)

	return &ff.Command{
		Name:      "export",
		Usage:     "shelf-scanner export [--format json|parquet] [--out FILE]",
		ShortHelp: "export the full history",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			setupLogging(*a.debug)

			service, closeAll, err := a.open(false)
			if err != nil {
				return err
			}
			defer closeAll()

			records := service.List(ctx, -1)

			var w io.Writer = os.Stdout
			if *out != "-" {
				f, err := os.Create(*out)
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := pantry.Export(w, *format, records); err != nil {
				return err
			}
			slog.Info("Exported history", "records", len(records), "format", *format, "out", *out)
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable writes one line per record with its items and shelf-life
func printTable(w io.Writer, records []*pantry.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tITEMS")
	for _, r := range records {
		names := make([]string, 0, len(r.Items))
		for _, item := range r.Items {
			names = append(names, fmt.Sprintf("%s (%s)", item.Name, item.ShelfLife))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.RecognitionDate, strings.Join(names, ", "))
	}
	return tw.Flush()
}
