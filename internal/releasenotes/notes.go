package releasenotes

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// DefaultFileName is the release notes file looked up in a plugin checkout.
const DefaultFileName = "releases/latest_release.md"

const (
	nextHeading    = "## next patch"
	detailsOpen    = "<details><summary>Previous patches</summary>"
	detailsClose   = "</details>"
	versionHeading = "## patch `%s`"
)

var (
	nextHeadingRegex    = regexp.MustCompile(`(?i)^##\s+next\s+patch\s*$`)
	versionHeadingRegex = regexp.MustCompile("^##\\s+patch\\s+`([^`]+)`\\s*$")
)

// ErrNoNotes is returned when there is nothing to release: no next-patch
// section and no section for the requested version.
var ErrNoNotes = errors.New("no release notes for version")

// Section is one "## ..." block of the notes.
type Section struct {
	// Version is the canonical "vX.Y.Z" of a patch section, empty for the
	// next-patch section.
	Version string

	// Body is the section text without its heading. Surrounding blank lines
	// are trimmed; everything else is kept as written.
	Body string
}

// IsNext reports whether s is the unreleased next-patch section.
func (s Section) IsNext() bool {
	return s.Version == ""
}

func (s Section) heading() string {
	if s.IsNext() {
		return nextHeading
	}
	return fmt.Sprintf(versionHeading, s.Version)
}

// Document is a parsed release notes file.
type Document struct {
	// Preamble is any text before the first section heading.
	Preamble string

	Sections []Section
}

// Parse splits text into a preamble and sections. An existing
// "Previous patches" wrapper is removed first, so parsing formatted output
// yields the same sections as parsing the unformatted notes.
func Parse(text string) *Document {
	lines := unwrap(strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"))

	doc := &Document{}
	var current *Section
	var buf []string

	flush := func() {
		body := trimBlankLines(buf)
		if current == nil {
			doc.Preamble = body
		} else {
			current.Body = body
			doc.Sections = append(doc.Sections, *current)
		}
		buf = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if nextHeadingRegex.MatchString(trimmed) {
			flush()
			current = &Section{}
			continue
		}
		if m := versionHeadingRegex.FindStringSubmatch(trimmed); m != nil {
			flush()
			current = &Section{Version: canonical(m[1])}
			continue
		}
		buf = append(buf, line)
	}
	flush()

	return doc
}

// ParseFile reads and parses the notes at path. A missing file is an empty
// document.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{}, nil
		}
		return nil, fmt.Errorf("failed to read release notes: %w", err)
	}
	return Parse(string(data)), nil
}

// unwrap drops the "Previous patches" wrapper lines: the opening summary
// line and the last closing tag after it.
func unwrap(lines []string) []string {
	open := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == detailsOpen {
			open = i
			break
		}
	}
	if open < 0 {
		return lines
	}
	closing := -1
	for i := len(lines) - 1; i > open; i-- {
		if strings.TrimSpace(lines[i]) == detailsClose {
			closing = i
			break
		}
	}

	out := make([]string, 0, len(lines))
	for i, l := range lines {
		if i == open || i == closing {
			continue
		}
		out = append(out, l)
	}
	return out
}

func trimBlankLines(lines []string) string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// canonical returns v with a "v" prefix, the form x/mod/semver compares.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// next returns the index of the next-patch section, or -1.
func (d *Document) next() int {
	for i, s := range d.Sections {
		if s.IsNext() {
			return i
		}
	}
	return -1
}

// find returns the index of the section for version, or -1.
func (d *Document) find(version string) int {
	v := canonical(version)
	for i, s := range d.Sections {
		if !s.IsNext() && s.Version == v {
			return i
		}
	}
	return -1
}

// AddUnreleased appends text to the next-patch section, creating the section
// at the top when it does not exist. Blank text is ignored.
func (d *Document) AddUnreleased(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if i := d.next(); i >= 0 {
		if d.Sections[i].Body == "" {
			d.Sections[i].Body = text
		} else {
			d.Sections[i].Body += "\n\n" + text
		}
		return
	}
	d.Sections = append([]Section{{Body: text}}, d.Sections...)
}

// Body returns the notes of the given version.
func (d *Document) Body(version string) (string, error) {
	i := d.find(version)
	if i < 0 {
		return "", fmt.Errorf("%w %s", ErrNoNotes, canonical(version))
	}
	return d.Sections[i].Body, nil
}

// Format releases the notes under version and returns the rewritten text.
//
// The next-patch section becomes the version's section; when both exist the
// unreleased notes are appended to the version's notes. The version's
// section goes first, followed by any newer sections. Strictly older
// sections are nested, newest first, inside a "Previous patches" block.
// Section bodies are kept verbatim, and formatting already formatted notes
// for the same version returns them unchanged.
func (d *Document) Format(version string) (string, error) {
	v := canonical(version)
	if !semver.IsValid(v) {
		return "", fmt.Errorf("invalid version %q", version)
	}

	ni, vi := d.next(), d.find(v)
	if ni < 0 && vi < 0 {
		return "", fmt.Errorf("%w %s", ErrNoNotes, v)
	}

	target := Section{Version: v}
	if vi >= 0 {
		target.Body = d.Sections[vi].Body
	}
	if ni >= 0 {
		if next := d.Sections[ni].Body; next != "" {
			if target.Body == "" {
				target.Body = next
			} else {
				target.Body += "\n\n" + next
			}
		}
	}

	var newer, older []Section
	for i, s := range d.Sections {
		if i == ni || i == vi {
			continue
		}
		if semver.Compare(s.Version, v) > 0 {
			newer = append(newer, s)
		} else {
			older = append(older, s)
		}
	}
	byVersionDesc := func(list []Section) {
		sort.SliceStable(list, func(i, j int) bool {
			return semver.Compare(list[i].Version, list[j].Version) > 0
		})
	}
	byVersionDesc(newer)
	byVersionDesc(older)

	d.Sections = append(append([]Section{target}, newer...), older...)

	var b strings.Builder
	if d.Preamble != "" {
		b.WriteString(d.Preamble)
		b.WriteString("\n\n")
	}
	writeSection(&b, target)
	for _, s := range newer {
		writeSection(&b, s)
	}
	if len(older) > 0 {
		b.WriteString(detailsOpen)
		b.WriteString("\n\n")
		for _, s := range older {
			writeSection(&b, s)
		}
		b.WriteString(detailsClose)
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

func writeSection(b *strings.Builder, s Section) {
	b.WriteString(s.heading())
	b.WriteString("\n\n")
	if s.Body != "" {
		b.WriteString(s.Body)
		b.WriteString("\n\n")
	}
}

// FormatFile adds description to the unreleased notes in path, formats them
// for version and writes the result back. It returns the version's notes.
func FormatFile(path, version, description string) (string, error) {
	doc, err := ParseFile(path)
	if err != nil {
		return "", err
	}
	doc.AddUnreleased(description)

	text, err := doc.Format(version)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create release notes directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("failed to write release notes: %w", err)
	}
	return doc.Body(version)
}
