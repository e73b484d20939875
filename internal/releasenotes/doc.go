// Package releasenotes parses and rewrites the plugin's release notes file.
//
// The file is markdown split into sections by two kinds of headings:
//
//	## next patch
//	## patch `v1.2.3`
//
// "next patch" collects notes for the unreleased version. Formatting for a
// release renames it to the released version, keeps that section on top and
// folds every older patch into a collapsible "Previous patches" block.
//
// The block is an HTML <details> element rather than an Obsidian callout:
// GitHub renders it collapsed in release bodies and the folded sections stay
// byte for byte as written, with no "> " prefix to add or strip.
package releasenotes
