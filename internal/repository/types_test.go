package repository

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineKey_RoundTrip(t *testing.T) {
	tests := []LineKey{
		{Path: "/repo/main.go", Number: 1},
		{Path: `C:\repo\main.go`, Number: 42},
		{Path: "/repo/odd:name.txt", Number: 7},
	}
	for _, k := range tests {
		t.Run(k.String(), func(t *testing.T) {
			parsed, err := ParseLineKey(k.String())
			require.NoError(t, err)
			assert.Equal(t, k, parsed)
		})
	}
}

func TestParseLineKey_Invalid(t *testing.T) {
	for _, s := range []string{"", "noline", ":3", "/a.go:", "/a.go:x", "/a.go:0"} {
		_, err := ParseLineKey(s)
		assert.Error(t, err, s)
	}
}

func TestKind(t *testing.T) {
	for _, k := range []Kind{KindFolder, KindFile, KindLine} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("symlink")
	assert.Error(t, err)
	assert.Equal(t, "unknown", Kind(0).String())
}

func TestFolderSummary(t *testing.T) {
	assert.Equal(t, "Folder contains 0 items", FolderSummary(0))
	assert.Equal(t, "Folder contains 12 items", FolderRecord{EntryCount: 12}.EmbeddingText())
}

func TestLineRecord_Context(t *testing.T) {
	rec := LineRecord{
		Path:       "/r/a.go",
		LineNumber: 2,
		Previous:   &LineContext{LineNumber: 1, Content: "a"},
		Next:       &LineContext{LineNumber: 3, Content: "c"},
	}
	assert.Equal(t, []LineContext{{1, "a"}, {3, "c"}}, rec.Context())
	assert.Equal(t, "/r/a.go:2", rec.Key())
}

func TestIsBinaryContent(t *testing.T) {
	assert.False(t, IsBinaryContent(nil))
	assert.False(t, IsBinaryContent([]byte("plain text\n")))
	assert.True(t, IsBinaryContent([]byte{'a', 0, 'b'}))

	late := append([]byte(strings.Repeat("a", binarySniffLen)), 0)
	assert.False(t, IsBinaryContent(late), "null bytes past the sniff window are ignored")
}

func TestIsBinaryFile(t *testing.T) {
	dir := t.TempDir()

	text := filepath.Join(dir, "t.txt")
	require.NoError(t, os.WriteFile(text, []byte("hello"), 0644))
	bin, err := IsBinaryFile(text)
	require.NoError(t, err)
	assert.False(t, bin)

	late := filepath.Join(dir, "late.dat")
	require.NoError(t, os.WriteFile(late, append([]byte(strings.Repeat("x", 2048)), 0), 0644))
	bin, err = IsBinaryFile(late)
	require.NoError(t, err)
	assert.False(t, bin)

	early := filepath.Join(dir, "early.dat")
	require.NoError(t, os.WriteFile(early, []byte("\x7fELF\x00"), 0644))
	bin, err = IsBinaryFile(early)
	require.NoError(t, err)
	assert.True(t, bin)

	_, err = IsBinaryFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, splitLines(""))
	assert.Equal(t, []string{"a"}, splitLines("a\n"))
	assert.Equal(t, []string{"a", ""}, splitLines("a\n\n"))
}

func TestDecodeText(t *testing.T) {
	s, fellBack := decodeText([]byte("a\r\nb"))
	assert.Equal(t, "a\nb", s)
	assert.False(t, fellBack)

	s, fellBack = decodeText([]byte{'o', 'k', 0xff})
	assert.Equal(t, "ok\uFFFD", s)
	assert.True(t, fellBack)
}
