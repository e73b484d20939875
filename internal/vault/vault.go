// Package vault reads an Obsidian vault from disk: the markdown and canvas
// sources it contains, the links inside canvas files, and fuzzy lookup of
// sources by path for the context selector.
package vault

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
)

// Source extensions recognised in a vault.
const (
	MarkdownExt = ".md"
	CanvasExt   = ".canvas"
)

// Source is one indexable file of a vault.
type Source struct {
	// Path is relative to the vault root and uses forward slashes.
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
}

// Ext returns the source's extension (".md" or ".canvas").
func (s Source) Ext() string {
	return filepath.Ext(s.Path)
}

// IsSource reports whether path names a markdown or canvas file outside any
// hidden folder.
func IsSource(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != MarkdownExt && ext != CanvasExt {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return false
		}
	}
	return true
}

// ListSources walks root and returns its markdown and canvas files sorted by
// path. Hidden folders such as .obsidian and .trash are skipped.
func ListSources(root string) ([]Source, error) {
	var sources []Source
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if !IsSource(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sources = append(sources, Source{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list vault sources: %w", err)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })
	return sources, nil
}

// canvasDoc is the subset of the canvas JSON format that carries links.
type canvasDoc struct {
	Nodes []struct {
		Type string `json:"type"`
		File string `json:"file"`
		Text string `json:"text"`
	} `json:"nodes"`
}

var wikilinkRegex = regexp.MustCompile(`\[\[([^\[\]]+?)\]\]`)

// CanvasLinks returns the link targets referenced by a canvas file: the path
// of every file node and every [[wikilink]] inside text nodes, in order of
// first appearance without duplicates. Link aliases ("target|alias") and
// heading anchors ("target#heading") are dropped.
//
// A canvas that is not valid JSON yields no links rather than an error.
func CanvasLinks(data []byte) []string {
	var doc canvasDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return []string{}
	}

	links := []string{}
	seen := make(map[string]struct{})
	add := func(link string) {
		link = strings.TrimSpace(link)
		if link == "" {
			return
		}
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}

	for _, n := range doc.Nodes {
		switch n.Type {
		case "file":
			add(n.File)
		case "text":
			for _, m := range wikilinkRegex.FindAllStringSubmatch(n.Text, -1) {
				add(linkTarget(m[1]))
			}
		}
	}
	return links
}

// linkTarget strips the alias and heading parts of a wikilink body.
func linkTarget(s string) string {
	if i := strings.IndexByte(s, '|'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	return s
}

// Match is one fuzzy search hit.
type Match struct {
	Source Source `json:"source"`

	// Score ranks the match; higher is better.
	Score int `json:"score"`

	// MatchedIndexes are the byte offsets of the matched characters in
	// Source.Path.
	MatchedIndexes []int `json:"matched_indexes"`
}

// sourceList implements fuzzy.Source over vault paths.
type sourceList []Source

func (s sourceList) String(i int) string { return s[i].Path }
func (s sourceList) Len() int            { return len(s) }

// Find ranks sources by how well their path matches query. At most limit
// matches are returned; limit <= 0 returns all of them. An empty query
// matches nothing.
func Find(query string, sources []Source, limit int) []Match {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	results := fuzzy.FindFrom(query, sourceList(sources))

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			Source:         sources[r.Index],
			Score:          r.Score,
			MatchedIndexes: r.MatchedIndexes,
		})
		if limit > 0 && len(matches) == limit {
			break
		}
	}
	return matches
}
