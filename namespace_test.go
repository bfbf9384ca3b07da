package fat32

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitPathDiscardsEmptySegments(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, splitPath("/a/b/c/"))
	require.Equal(t, []string{"a"}, splitPath("a"))
	require.Empty(t, splitPath(""))
	require.Empty(t, splitPath("///"))
}

func TestResolvePathEmptyResolvesToRoot(t *testing.T) {
	cio := newClusterIO(t, 5)
	parent, entry, err := resolvePath(cio, 2, "")
	require.NoError(t, err)
	require.EqualValues(t, 2, parent)
	require.Equal(t, KindDirectory, entry.Kind)
	require.EqualValues(t, 2, entry.FirstCluster)
}

func TestResolvePathNotFound(t *testing.T) {
	cio := newClusterIO(t, 5)
	_, _, err := resolvePath(cio, 2, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
