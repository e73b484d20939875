// Package bundle reads plugin bundles: ZIP archives with a manifest.json at
// their root and the plugin's files next to it.
//
// The reader walks local file headers from the start of the archive and
// never consults the central directory. It supports stored and DEFLATE
// entries, including entries written in streaming mode where sizes only
// appear in a trailing data descriptor. ZIP64, encryption and other
// compression methods are not supported; an entry using them is skipped
// and reported, the rest of the archive is still extracted.
package bundle
