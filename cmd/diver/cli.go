package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/diverhq/diver/internal/config"
	"github.com/diverhq/diver/internal/db"
	"github.com/diverhq/diver/internal/errors"
	"github.com/diverhq/diver/internal/ops"
	"github.com/diverhq/diver/internal/pipeline"
	"github.com/diverhq/diver/internal/queue"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(database *sql.DB, q *queue.Store, cfg *config.Config, baseDir string) *cli.App {
	app := &cli.App{
		Name:    "diver",
		Usage:   "Save-for-later capture queue and link signer",
		Version: Version,
		Commands: []*cli.Command{
			saveCmd(q, cfg),
			fetchCmd(database),
			listCmd(database),
			archiveCmd(database),
			drainCmd(database, q, cfg, baseDir),
			wrapCmd(cfg, baseDir),
			resolveCmd(cfg, baseDir),
			exportCmd(database),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// saveCmd creates the save command.
func saveCmd(q *queue.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "Save a URL or piped text into the capture queue",
		ArgsUsage: "[url]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Item title"},
			&cli.StringFlag{Name: "type", Usage: "Item type (default: web)"},
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated style tags"},
			&cli.StringFlag{Name: "categories", Usage: "Comma-separated categories"},
			&cli.StringFlag{Name: "source", Value: "cli", Usage: "Capture source"},
			&cli.StringFlag{Name: "session", Usage: "Capture session id"},
		},
		Action: func(c *cli.Context) error {
			input := ops.SaveInput{
				Title:      c.String("title"),
				Type:       c.String("type"),
				StyleTags:  splitCSV(c.String("tags")),
				Categories: splitCSV(c.String("categories")),
				Source:     c.String("source"),
				SessionID:  c.String("session"),
			}

			if c.NArg() > 0 {
				input.URL = c.Args().First()
			}

			// Piped text becomes the description
			if stdinHasData() {
				text, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				input.DescriptionText = text
			}

			output, err := ops.Save(q, cfg, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(database *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a stored item by id",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Fetch(database, ops.FetchInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(database *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored items, newest update first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status (queued|processing|ready|failed|archived)"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(database, ops.ListInput{
				Status: c.String("status"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// archiveCmd creates the archive command.
func archiveCmd(database *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "archive",
		Usage:     "Archive a ready item",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Archive(database, ops.ArchiveInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// drainCmd creates the drain command.
func drainCmd(database *sql.DB, q *queue.Store, cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "drain",
		Usage: "Process every pending queue entry through the enrichment pipeline",
		Action: func(c *cli.Context) error {
			secret, err := config.Secret(baseDir, cfg)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			deps := pipeline.Deps{AssetsDir: db.AssetsDir(baseDir)}
			output, err := ops.Drain(c.Context, database, q, cfg, secret, deps)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// wrapCmd creates the wrap command.
func wrapCmd(cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:      "wrap",
		Usage:     "Mint a signed opaque link for a URL",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Title carried in the payload"},
			&cli.BoolFlag{Name: "payload", Usage: "Embed the destination and title in the link"},
		},
		Action: func(c *cli.Context) error {
			secret, err := config.Secret(baseDir, cfg)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			output, err := ops.WrapLink(cfg, secret, ops.WrapLinkInput{
				URL:            c.Args().First(),
				Title:          c.String("title"),
				IncludePayload: c.Bool("payload"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// resolveCmd creates the resolve command.
func resolveCmd(cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Verify a wrapped link and recover its payload",
		ArgsUsage: "<wrapped-url>",
		Action: func(c *cli.Context) error {
			secret, err := config.Secret(baseDir, cfg)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			output, err := ops.ResolveLink(secret, ops.ResolveLinkInput{URL: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(database *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write an HTML digest of stored items to a file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Output file path (.html)"},
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Status to export (default: ready)"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum records to export"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(database, ops.ExportInput{
				Path:   c.String("path"),
				Status: c.String("status"),
				Limit:  c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if diverErr, ok := err.(*errors.DiverError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", diverErr.Code, diverErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// splitCSV splits a comma-separated string into a trimmed slice.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
