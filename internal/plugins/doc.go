// Package plugins is the client for the first-party plugin distribution
// server and the installer that unpacks downloaded bundles into a vault.
//
// The server exposes three POST endpoints: /plugin_list, /plugin_readme and
// /plugin_download. Requests are authenticated with a bearer token that
// `smart-env plugin login` saves to the XDG state directory.
package plugins
