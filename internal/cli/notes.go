package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smart-env/obsidian-smart-env/internal/app"
	"github.com/smart-env/obsidian-smart-env/internal/manifest"
	"github.com/smart-env/obsidian-smart-env/internal/model"
	"github.com/smart-env/obsidian-smart-env/internal/releasenotes"
)

// notesFlags holds the flag values shared by the notes subcommands.
type notesFlags struct {
	dir         string
	file        string
	version     string
	description string
}

func (f *notesFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dir, "dir", ".", "Plugin checkout directory")
	cmd.Flags().StringVar(&f.file, "file", "", "Release notes file (default: config release.notes_file)")
	cmd.Flags().StringVar(&f.version, "version", "", "Version (default: manifest.json version)")
}

// NewNotesCommand creates the "notes" command group.
func NewNotesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Maintain the release notes file",
	}
	cmd.AddCommand(newNotesFormatCommand())
	cmd.AddCommand(newNotesShowCommand())
	return cmd
}

func newNotesFormatCommand() *cobra.Command {
	flags := &notesFlags{}

	cmd := &cobra.Command{
		Use:   "format",
		Short: "Release the next-patch notes under a version",
		Long: "Rename the \"## next patch\" section to \"## patch `vX.Y.Z`\", keep it on\n" +
			"top and fold older patches into a \"Previous patches\" block. Running it\n" +
			"again for the same version leaves the file unchanged.\n\n" +
			"Examples:\n" +
			"  smart-env notes format --version 1.2.0\n" +
			"  smart-env notes format -m \"Faster lookups\"",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return runNotesFormat(cmd.Context(), a, flags)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVarP(&flags.description, "message", "m", "", "Text added to the next-patch notes first")
	return cmd
}

func runNotesFormat(_ context.Context, a *app.App, flags *notesFlags) error {
	version, path, err := flags.resolve(a)
	if err != nil {
		return err
	}
	body, err := releasenotes.FormatFile(path, version, flags.description)
	if err != nil {
		return notesError(err)
	}
	a.Logger.Debug().Str("path", path).Str("version", version).Msg("formatted release notes")

	if a.JSON {
		return printJSON(a.Out, map[string]string{"path": path, "version": version, "notes": body})
	}
	fmt.Fprintf(a.Out, "%s %s for %s\n", green("formatted"), path, version)
	return nil
}

func newNotesShowCommand() *cobra.Command {
	flags := &notesFlags{}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the notes of a released version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			version, path, err := flags.resolve(a)
			if err != nil {
				return err
			}
			doc, err := releasenotes.ParseFile(path)
			if err != nil {
				return err
			}
			body, err := doc.Body(version)
			if err != nil {
				return notesError(err)
			}
			if a.JSON {
				return printJSON(a.Out, map[string]string{"version": version, "notes": body})
			}
			fmt.Fprintln(a.Out, body)
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

// resolve returns the version and the notes file path.
func (f *notesFlags) resolve(a *app.App) (version, path string, err error) {
	version = strings.TrimSpace(f.version)
	if version == "" {
		m, err := manifest.Load(filepath.Join(f.dir, manifest.FileName))
		if err != nil {
			return "", "", err
		}
		version = m.Version
	}
	if !manifest.IsSemver(version) {
		return "", "", model.NewCLIError(model.ExitGeneralError, fmt.Sprintf("invalid version %q", version))
	}

	path = firstNonEmpty(f.file, a.Config.Release.NotesFile, releasenotes.DefaultFileName)
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.dir, path)
	}
	return version, path, nil
}

func notesError(err error) error {
	if errors.Is(err, releasenotes.ErrNoNotes) {
		return model.WrapCLIError(model.ExitNotFound, "no release notes found", err)
	}
	return err
}
