// Package manifest loads and validates plugin descriptors (manifest.json)
// and the package.json that accompanies them in a plugin checkout.
//
// Both files are parsed through github.com/tidwall/jsonc so that comments
// and trailing commas do not break loading. Versions are compared with
// golang.org/x/mod/semver after normalising to the "v"-prefixed form.
package manifest
