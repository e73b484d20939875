// Package release publishes a plugin checkout as a GitHub release.
//
// Run checks that package.json and manifest.json carry the same version,
// resolves the API token and target repository, folds an optional
// description into the release notes file, creates the release and uploads
// the built plugin files together with a zip of them.
//
// Every failure the user can act on is returned as a model.CLIError so the
// CLI exits with the matching code (version mismatch, missing token,
// declined prompt, remote API error).
package release
