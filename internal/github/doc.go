// Package github is a small client for the GitHub releases API: looking up
// a release by tag, creating and deleting releases, deleting tags and
// uploading release assets.
//
// Requests carry the token as a bearer credential through
// golang.org/x/oauth2 and are paced by a token-bucket limiter. There are no
// retries; every non-2xx response is returned as an *APIError.
package github
