package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smart-env/obsidian-smart-env/internal/app"
	"github.com/smart-env/obsidian-smart-env/internal/github"
	"github.com/smart-env/obsidian-smart-env/internal/gitrepo"
	"github.com/smart-env/obsidian-smart-env/internal/release"
)

// releaseFlags holds the flag values for the release command.
type releaseFlags struct {
	dir             string
	owner           string
	repo            string
	draft           bool
	replaceExisting bool
	yes             bool
}

// NewReleaseCommand creates the "release" cobra command.
func NewReleaseCommand() *cobra.Command {
	flags := &releaseFlags{}

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Publish the plugin checkout as a GitHub release",
		Long: `Publish the current plugin version as a GitHub release.

The versions in package.json and manifest.json must match. The GitHub token
is read from GH_TOKEN or GITHUB_TOKEN, falling back to a .env file in the
plugin directory. The next-patch release notes become the release
description and the notes file is rewritten for the version. main.js,
manifest.json and styles.css are attached together with a zip of them.

Examples:
  smart-env release
  smart-env release --draft
  smart-env release --replace-existing --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return runRelease(cmd.Context(), a, flags)
		},
	}

	cmd.Flags().StringVar(&flags.dir, "dir", ".", "Plugin checkout directory")
	cmd.Flags().StringVar(&flags.owner, "owner", "", "GitHub owner (default: from the git remote)")
	cmd.Flags().StringVar(&flags.repo, "repo", "", "GitHub repository (default: from the git remote)")
	cmd.Flags().BoolVar(&flags.draft, "draft", false, "Create the release as a draft")
	cmd.Flags().BoolVar(&flags.replaceExisting, "replace-existing", false, "Delete an existing release and tag for the version without asking")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Answer yes to every prompt and skip the description")
	return cmd
}

func runRelease(ctx context.Context, a *app.App, flags *releaseFlags) error {
	cfg := a.Config.Release

	git, err := gitrepo.Open(ctx, flags.dir)
	if err != nil {
		return err
	}

	var prompt release.Prompter = release.AutoPrompter{}
	if !flags.yes {
		rp := release.NewReadlinePrompter()
		a.OnClose(rp.Close)
		prompt = rp
	}

	opts := release.Options{
		Dir:             flags.dir,
		Owner:           firstNonEmpty(flags.owner, cfg.Owner),
		Repo:            firstNonEmpty(flags.repo, cfg.Repo),
		Remote:          cfg.Remote,
		NotesFile:       cfg.NotesFile,
		Assets:          cfg.Assets,
		Draft:           flags.draft,
		ReplaceExisting: flags.replaceExisting,
	}
	deps := release.Deps{
		NewGitHub: func(token string) (release.GitHub, error) {
			client, err := github.NewClient(token, githubOptions(a)...)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		Git:    git,
		Prompt: prompt,
		Logger: a.Log(),
	}

	res, err := release.Run(ctx, opts, deps)
	if err != nil {
		return err
	}

	if a.JSON {
		return printJSON(a.Out, res)
	}
	kind := "release"
	if res.Draft {
		kind = "draft release"
	}
	fmt.Fprintf(a.Out, "%s %s %s on %s\n", green("published"), kind, res.Version, res.Repo)
	if res.URL != "" {
		fmt.Fprintf(a.Out, "  %s\n", cyan(res.URL))
	}
	if len(res.Assets) > 0 {
		fmt.Fprintf(a.Out, "  assets: %s\n", strings.Join(res.Assets, ", "))
	}
	return nil
}

// githubOptions returns client options for configured API endpoints.
func githubOptions(a *app.App) []github.Option {
	var opts []github.Option
	if u := a.Config.Release.APIURL; u != "" {
		opts = append(opts, github.WithAPIURL(u))
	}
	if u := a.Config.Release.UploadURL; u != "" {
		opts = append(opts, github.WithUploadURL(u))
	}
	return opts
}
