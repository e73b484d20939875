package releasenotes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unreleased = "# Smart Context releases\n" +
	"\n" +
	"## next patch\n" +
	"\n" +
	"- fixed context lookup\n" +
	"  - nested detail with `code`\n" +
	"\n" +
	"## patch `v1.0.1`\n" +
	"\n" +
	"- second patch\n" +
	"\n" +
	"## patch `v1.0.0`\n" +
	"\n" +
	"- first patch\n" +
	"\n" +
	"> quoted line\n"

const formatted = "# Smart Context releases\n" +
	"\n" +
	"## patch `v1.0.2`\n" +
	"\n" +
	"- fixed context lookup\n" +
	"  - nested detail with `code`\n" +
	"\n" +
	"<details><summary>Previous patches</summary>\n" +
	"\n" +
	"## patch `v1.0.1`\n" +
	"\n" +
	"- second patch\n" +
	"\n" +
	"## patch `v1.0.0`\n" +
	"\n" +
	"- first patch\n" +
	"\n" +
	"> quoted line\n" +
	"\n" +
	"</details>\n"

func TestParse(t *testing.T) {
	doc := Parse(unreleased)

	assert.Equal(t, "# Smart Context releases", doc.Preamble)
	require.Len(t, doc.Sections, 3)
	assert.True(t, doc.Sections[0].IsNext())
	assert.Equal(t, "- fixed context lookup\n  - nested detail with `code`", doc.Sections[0].Body)
	assert.Equal(t, "v1.0.1", doc.Sections[1].Version)
	assert.Equal(t, "v1.0.0", doc.Sections[2].Version)
	assert.Equal(t, "- first patch\n\n> quoted line", doc.Sections[2].Body)
}

func TestParse_BareVersionHeading(t *testing.T) {
	doc := Parse("## patch `2.1.0`\n\nnotes\n")
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "v2.1.0", doc.Sections[0].Version)
}

func TestFormat(t *testing.T) {
	doc := Parse(unreleased)

	got, err := doc.Format("1.0.2")
	require.NoError(t, err)
	assert.Equal(t, formatted, got)

	body, err := doc.Body("1.0.2")
	require.NoError(t, err)
	assert.Equal(t, "- fixed context lookup\n  - nested detail with `code`", body)
}

func TestFormat_Idempotent(t *testing.T) {
	first, err := Parse(unreleased).Format("v1.0.2")
	require.NoError(t, err)

	second, err := Parse(first).Format("v1.0.2")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFormat_NextReleaseOnFormattedNotes(t *testing.T) {
	doc := Parse(formatted)
	doc.AddUnreleased("- new feature")

	got, err := doc.Format("1.0.3")
	require.NoError(t, err)

	want := "# Smart Context releases\n" +
		"\n" +
		"## patch `v1.0.3`\n" +
		"\n" +
		"- new feature\n" +
		"\n" +
		"<details><summary>Previous patches</summary>\n" +
		"\n" +
		"## patch `v1.0.2`\n" +
		"\n" +
		"- fixed context lookup\n" +
		"  - nested detail with `code`\n" +
		"\n" +
		"## patch `v1.0.1`\n" +
		"\n" +
		"- second patch\n" +
		"\n" +
		"## patch `v1.0.0`\n" +
		"\n" +
		"- first patch\n" +
		"\n" +
		"> quoted line\n" +
		"\n" +
		"</details>\n"
	assert.Equal(t, want, got)
}

func TestFormat_OrdersOlderBySemver(t *testing.T) {
	doc := Parse("## next patch\n\nx\n\n" +
		"## patch `v1.0.0`\n\na\n\n" +
		"## patch `v1.0.10`\n\nc\n\n" +
		"## patch `v1.0.9`\n\nb\n")

	got, err := doc.Format("1.1.0")
	require.NoError(t, err)

	var versions []string
	for _, s := range Parse(got).Sections {
		versions = append(versions, s.Version)
	}
	assert.Equal(t, []string{"v1.1.0", "v1.0.10", "v1.0.9", "v1.0.0"}, versions)
}

func TestFormat_NewerSectionsStayOnTop(t *testing.T) {
	doc := Parse("## next patch\n\nbackport\n\n" +
		"## patch `v2.0.0`\n\nmajor\n\n" +
		"## patch `v1.4.0`\n\nold\n")

	got, err := doc.Format("1.5.0")
	require.NoError(t, err)

	want := "## patch `v1.5.0`\n" +
		"\n" +
		"backport\n" +
		"\n" +
		"## patch `v2.0.0`\n" +
		"\n" +
		"major\n" +
		"\n" +
		"<details><summary>Previous patches</summary>\n" +
		"\n" +
		"## patch `v1.4.0`\n" +
		"\n" +
		"old\n" +
		"\n" +
		"</details>\n"
	assert.Equal(t, want, got)
}

func TestFormat_MergesNextIntoExistingVersion(t *testing.T) {
	doc := Parse("## next patch\n\n- late fix\n\n## patch `v1.0.0`\n\n- initial\n")

	_, err := doc.Format("1.0.0")
	require.NoError(t, err)

	body, err := doc.Body("1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "- initial\n\n- late fix", body)
}

func TestFormat_NoOlderSections(t *testing.T) {
	got, err := Parse("## next patch\n\nfirst release\n").Format("0.1.0")
	require.NoError(t, err)
	assert.Equal(t, "## patch `v0.1.0`\n\nfirst release\n", got)
}

func TestFormat_Errors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		version string
		noNotes bool
	}{
		{name: "no next and no version", text: "## patch `v1.0.0`\n\nold\n", version: "1.1.0", noNotes: true},
		{name: "empty document", text: "", version: "1.0.0", noNotes: true},
		{name: "invalid version", text: "## next patch\n\nx\n", version: "latest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text).Format(tt.version)
			require.Error(t, err)
			if tt.noNotes {
				assert.ErrorIs(t, err, ErrNoNotes)
			} else {
				assert.NotErrorIs(t, err, ErrNoNotes)
			}
		})
	}
}

func TestAddUnreleased(t *testing.T) {
	doc := Parse("## patch `v1.0.0`\n\nold\n")

	doc.AddUnreleased("   ")
	assert.Len(t, doc.Sections, 1)

	doc.AddUnreleased("first")
	doc.AddUnreleased("second")
	require.Len(t, doc.Sections, 2)
	assert.True(t, doc.Sections[0].IsNext())
	assert.Equal(t, "first\n\nsecond", doc.Sections[0].Body)
}

func TestFormatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "releases", "latest_release.md")

	body, err := FormatFile(path, "1.0.0", "Initial release")
	require.NoError(t, err)
	assert.Equal(t, "Initial release", body)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "## patch `v1.0.0`\n\nInitial release\n", string(data))

	_, err = FormatFile(filepath.Join(t.TempDir(), "missing.md"), "1.0.0", "")
	assert.ErrorIs(t, err, ErrNoNotes)
}
