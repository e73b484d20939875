package envgen

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Export detection is textual: the generator never evaluates or parses the
// modules it registers. Names written in comments or strings can therefore
// produce false positives, and computed re-exports are not seen.
var (
	// export function name / export async function name / export function* name
	exportFuncRegex = regexp.MustCompile(`\bexport\s+(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`)

	// export const name / let / var / class
	exportDeclRegex = regexp.MustCompile(`\bexport\s+(?:const|let|var|class)\s+([A-Za-z_$][\w$]*)`)

	// export { a, b as c } (optionally followed by "from '...'")
	exportListRegex = regexp.MustCompile(`\bexport\s*\{([^}]*)\}`)
)

// ExportedNames returns the set of named exports declared in src.
func ExportedNames(src string) map[string]struct{} {
	names := make(map[string]struct{})

	for _, m := range exportFuncRegex.FindAllStringSubmatch(src, -1) {
		names[m[1]] = struct{}{}
	}
	for _, m := range exportDeclRegex.FindAllStringSubmatch(src, -1) {
		names[m[1]] = struct{}{}
	}
	for _, m := range exportListRegex.FindAllStringSubmatch(src, -1) {
		for _, item := range strings.Split(m[1], ",") {
			if name := exportListName(item); name != "" {
				names[name] = struct{}{}
			}
		}
	}

	return names
}

// exportListName returns the exported name of one "export { ... }" item:
// "a" exports a, "a as b" exports b.
func exportListName(item string) string {
	fields := strings.Fields(item)
	switch {
	case len(fields) == 1:
		return fields[0]
	case len(fields) == 3 && fields[1] == "as":
		return fields[2]
	default:
		return ""
	}
}

// ExportCache memoises ExportedNames per file. An entry is reused while the
// file's size and modification time are unchanged, so repeated generator
// runs in watch mode only re-read files that changed.
//
// ExportCache is safe for concurrent use.
type ExportCache struct {
	entries *lru.Cache[string, cachedExports]
}

type cachedExports struct {
	size    int64
	modTime time.Time
	names   map[string]struct{}
}

// DefaultCacheSize bounds the number of files remembered by an ExportCache.
const DefaultCacheSize = 4096

// NewExportCache creates a cache that remembers up to size files.
func NewExportCache(size int) (*ExportCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, cachedExports](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create export cache: %w", err)
	}
	return &ExportCache{entries: c}, nil
}

// Names returns the named exports of the file at path.
func (c *ExportCache) Names(path string) (map[string]struct{}, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if cached, ok := c.entries.Get(path); ok &&
		cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		return cached.names, nil
	}

	names, err := readExports(path)
	if err != nil {
		return nil, err
	}
	c.entries.Add(path, cachedExports{size: info.Size(), modTime: info.ModTime(), names: names})
	return names, nil
}

// Len returns the number of cached files.
func (c *ExportCache) Len() int {
	return c.entries.Len()
}

func readExports(path string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ExportedNames(string(data)), nil
}
