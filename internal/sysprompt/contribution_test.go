package sysprompt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssembleSectionOrderAndPriority(t *testing.T) {
	s := NewSet()
	s.Upsert(Contribution{Key: "tools-b", Section: Tools, Priority: 1, Content: "tool b"})
	s.Upsert(Contribution{Key: "identity", Section: Identity, Priority: 0, Content: "you are an agent"})
	s.Upsert(Contribution{Key: "tools-a", Section: Tools, Priority: 5, Content: "tool a"})

	out, err := s.Assemble()
	require.NoError(t, err)

	identityIdx := indexOf(out, "you are an agent")
	toolAIdx := indexOf(out, "tool a")
	toolBIdx := indexOf(out, "tool b")
	require.True(t, identityIdx < toolAIdx, "Identity section must render before Tools")
	require.True(t, toolAIdx < toolBIdx, "higher priority within a section renders first")
}

func TestAssembleCustomSectionsSortLexicographically(t *testing.T) {
	s := NewSet()
	s.Upsert(Contribution{Key: "z", Section: Custom, CustomName: "Zeta", Content: "zeta content"})
	s.Upsert(Contribution{Key: "a", Section: Custom, CustomName: "Alpha", Content: "alpha content"})

	out, err := s.Assemble()
	require.NoError(t, err)
	require.True(t, indexOf(out, "alpha content") < indexOf(out, "zeta content"))
}

func TestAssembleDeterministic(t *testing.T) {
	build := func() *Set {
		s := NewSet()
		s.Upsert(Contribution{Key: "k1", Section: Guidelines, Priority: 2, Content: "be concise"})
		s.Upsert(Contribution{Key: "k2", Section: Guidelines, Priority: 2, Content: "be correct"})
		return s
	}

	out1, err := build().Assemble()
	require.NoError(t, err)
	out2, err := build().Assemble()
	require.NoError(t, err)
	require.Equal(t, out1, out2)
}

func TestAssembleTemplatedContribution(t *testing.T) {
	s := NewSet()
	s.Upsert(Contribution{
		Key:             "open-files",
		Section:         Context,
		Data:            struct{ Files []string }{Files: []string{"a.go", "b.go"}},
		DefaultTemplate: "open files: {{range .Files}}{{.}} {{end}}",
	})
	out, err := s.Assemble()
	require.NoError(t, err)
	require.Contains(t, out, "open files: a.go b.go")
}

func TestUpsertReplacesByKey(t *testing.T) {
	s := NewSet()
	s.Upsert(Contribution{Key: "k", Section: Identity, Content: "first"})
	s.Upsert(Contribution{Key: "k", Section: Identity, Content: "second"})
	require.Equal(t, 1, s.Len())
	out, err := s.Assemble()
	require.NoError(t, err)
	require.NotContains(t, out, "first")
	require.Contains(t, out, "second")
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
