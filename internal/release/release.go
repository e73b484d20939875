package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/smart-env/obsidian-smart-env/internal/github"
	"github.com/smart-env/obsidian-smart-env/internal/manifest"
	"github.com/smart-env/obsidian-smart-env/internal/model"
	"github.com/smart-env/obsidian-smart-env/internal/releasenotes"
)

// tokenVars are the environment variables checked for a GitHub token, in
// order.
var tokenVars = []string{"GH_TOKEN", "GITHUB_TOKEN"}

// GitHub is the subset of the GitHub API a release needs. *github.Client
// implements it.
type GitHub interface {
	ReleaseByTag(ctx context.Context, repo github.Repo, tag string) (*github.Release, error)
	CreateRelease(ctx context.Context, repo github.Repo, in github.NewRelease) (*github.Release, error)
	DeleteRelease(ctx context.Context, repo github.Repo, id int64) error
	DeleteTag(ctx context.Context, repo github.Repo, tag string) error
	UploadAsset(ctx context.Context, repo github.Repo, releaseID int64, name, contentType string, data []byte) (*github.Asset, error)
}

// Git is the subset of the git adapter a release needs. *gitrepo.Repo
// implements it.
type Git interface {
	CurrentBranch(ctx context.Context) (string, error)
	HeadCommit(ctx context.Context) (string, error)
	IsClean(ctx context.Context) (bool, error)
	GitHubRepo(ctx context.Context, remote string) (owner, name string, err error)
}

// Options control a release.
type Options struct {
	// Dir is the plugin checkout holding package.json and manifest.json.
	Dir string

	// Owner and Repo select the GitHub repository. When either is empty
	// the repository is derived from Remote.
	Owner string
	Repo  string

	// Remote is the git remote used to find the repository. Defaults to
	// "origin".
	Remote string

	// NotesFile is the release notes file, relative to Dir unless
	// absolute. Defaults to releasenotes.DefaultFileName.
	NotesFile string

	// Assets are the files attached to the release. Defaults to
	// DefaultAssets.
	Assets []string

	Draft bool

	// ReplaceExisting deletes an existing release and tag for the version
	// without asking.
	ReplaceExisting bool
}

// Deps are the collaborators of Run. Tests replace them with fakes.
type Deps struct {
	// NewGitHub returns an API client authenticated with token.
	NewGitHub func(token string) (GitHub, error)

	Git    Git
	Prompt Prompter
	Logger *zerolog.Logger

	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Result describes a published release.
type Result struct {
	Version string   `json:"version"`
	Repo    string   `json:"repo"`
	URL     string   `json:"url"`
	Draft   bool     `json:"draft"`
	Assets  []string `json:"assets"`
}

// Run publishes the checkout in opts.Dir as a GitHub release.
func Run(ctx context.Context, opts Options, deps Deps) (*Result, error) {
	log := deps.logger()

	m, pkg, err := manifest.LoadDir(opts.Dir)
	if err != nil {
		return nil, err
	}
	version, err := CheckVersions(m, pkg)
	if err != nil {
		return nil, err
	}
	if problems := manifest.Validate(m); len(problems) > 0 {
		msgs := make([]string, len(problems))
		for i, p := range problems {
			msgs[i] = p.Field + ": " + p.Message
		}
		return nil, model.NewCLIError(model.ExitGeneralError, "invalid manifest.json: "+strings.Join(msgs, "; "))
	}
	log.Debug().Str("plugin", m.ID).Str("version", version).Msg("versions match")

	token, err := Token(opts.Dir, deps.getenv)
	if err != nil {
		return nil, err
	}

	repo, err := resolveRepo(ctx, opts, deps.Git)
	if err != nil {
		return nil, err
	}

	gh, err := deps.NewGitHub(token)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to create GitHub client", err)
	}

	tag := version
	if err := replaceExisting(ctx, gh, repo, tag, opts.ReplaceExisting, deps.Prompt, log); err != nil {
		return nil, err
	}

	description, err := deps.Prompt.Ask("Release description (optional):")
	if err != nil {
		return nil, promptError(err)
	}
	body, err := releasenotes.FormatFile(notesPath(opts), version, description)
	if err != nil {
		if !errors.Is(err, releasenotes.ErrNoNotes) {
			return nil, fmt.Errorf("failed to update release notes: %w", err)
		}
		log.Warn().Str("version", version).Msg("no release notes found, publishing with an empty description")
		body = ""
	}

	ok, err := deps.Prompt.Confirm(fmt.Sprintf("Create release %s on %s?", tag, repo))
	if err != nil {
		return nil, promptError(err)
	}
	if !ok {
		return nil, model.NewCLIError(model.ExitUserCancelled, "release cancelled")
	}

	branch, err := deps.Git.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}
	if commit, err := deps.Git.HeadCommit(ctx); err == nil {
		log.Debug().Str("branch", branch).Str("commit", commit).Msg("release target")
	}
	if clean, err := deps.Git.IsClean(ctx); err == nil && !clean {
		log.Warn().Msg("working tree has uncommitted changes; the release is created from the pushed branch")
	}

	rel, err := gh.CreateRelease(ctx, repo, github.NewRelease{
		TagName:         tag,
		TargetCommitish: branch,
		Name:            tag,
		Body:            body,
		Draft:           opts.Draft,
	})
	if err != nil {
		return nil, apiError(log, "failed to create release", err)
	}
	log.Info().Str("repo", repo.String()).Str("tag", tag).Int64("id", rel.ID).Msg("created release")

	assets, err := collectAssets(opts.Dir, assetNames(opts))
	if err != nil {
		return nil, err
	}
	if len(assets) > 0 {
		zipData, err := buildZip(m.ID, assets)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset{Name: ZipName(m.ID, version), Data: zipData})
	}

	uploaded, err := uploadAssets(ctx, gh, repo, rel.ID, assets)
	if err != nil {
		return nil, apiError(log, "failed to upload release assets", err)
	}

	return &Result{
		Version: version,
		Repo:    repo.String(),
		URL:     rel.HTMLURL,
		Draft:   rel.Draft,
		Assets:  uploaded,
	}, nil
}

// Token returns the GitHub token from the environment, falling back to a
// .env file in dir. Variables already set in the environment win over the
// file.
func Token(dir string, getenv func(string) string) (string, error) {
	for _, name := range tokenVars {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			return v, nil
		}
	}

	env, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read .env: %w", err)
	}
	for _, name := range tokenVars {
		if v := strings.TrimSpace(env[name]); v != "" {
			return v, nil
		}
	}

	return "", model.NewCLIError(
		model.ExitMissingCredentials,
		"no GitHub token: set GH_TOKEN or GITHUB_TOKEN (a .env file in the plugin directory works too)",
	)
}

func resolveRepo(ctx context.Context, opts Options, git Git) (github.Repo, error) {
	if opts.Owner != "" && opts.Repo != "" {
		return github.Repo{Owner: opts.Owner, Name: opts.Repo}, nil
	}
	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}
	owner, name, err := git.GitHubRepo(ctx, remote)
	if err != nil {
		return github.Repo{}, err
	}
	return github.Repo{Owner: owner, Name: name}, nil
}

// replaceExisting removes a release and tag for tag if one exists. Unless
// force is set the user is asked first.
func replaceExisting(ctx context.Context, gh GitHub, repo github.Repo, tag string, force bool, prompt Prompter, log *zerolog.Logger) error {
	existing, err := gh.ReleaseByTag(ctx, repo, tag)
	if err != nil {
		if github.IsNotFound(err) {
			return nil
		}
		return apiError(log, "failed to look up existing release", err)
	}

	if !force {
		ok, err := prompt.Confirm(fmt.Sprintf("Release %s already exists. Delete it and its tag?", tag))
		if err != nil {
			return promptError(err)
		}
		if !ok {
			return model.NewCLIError(model.ExitUserCancelled, fmt.Sprintf("release %s already exists", tag))
		}
	}

	if err := gh.DeleteRelease(ctx, repo, existing.ID); err != nil && !github.IsNotFound(err) {
		return apiError(log, "failed to delete existing release", err)
	}
	if err := gh.DeleteTag(ctx, repo, tag); err != nil && !github.IsNotFound(err) {
		return apiError(log, "failed to delete existing tag", err)
	}
	log.Info().Str("tag", tag).Msg("deleted existing release")
	return nil
}

func apiError(log *zerolog.Logger, message string, err error) error {
	log.Error().Err(err).Msg(message)
	return model.WrapCLIError(model.ExitRemoteError, message, err)
}

func promptError(err error) error {
	if errors.Is(err, ErrCancelled) {
		return model.NewCLIError(model.ExitUserCancelled, "release cancelled")
	}
	return fmt.Errorf("failed to read answer: %w", err)
}

func notesPath(opts Options) string {
	p := opts.NotesFile
	if p == "" {
		p = releasenotes.DefaultFileName
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(opts.Dir, p)
}

func assetNames(opts Options) []string {
	if len(opts.Assets) > 0 {
		return opts.Assets
	}
	return DefaultAssets
}

func (d Deps) logger() *zerolog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	nop := zerolog.New(io.Discard)
	return &nop
}

func (d Deps) getenv(key string) string {
	if d.Getenv != nil {
		return d.Getenv(key)
	}
	return os.Getenv(key)
}
