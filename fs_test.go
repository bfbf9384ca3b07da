package fat32

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustMount(t *testing.T, dataClusters uint32) *FS {
	t.Helper()
	med := newMemMedium(buildImage(dataClusters))
	fs, err := Mount(med, MountOptions{})
	require.NoError(t, err)
	return fs
}

func TestMountListsEmptyRoot(t *testing.T) {
	fs := mustMount(t, 20)
	entries, err := fs.List("")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCreateFileWriteReadRoundTrip(t *testing.T) {
	fs := mustMount(t, 20)
	cluster, err := fs.Create("", "hello.txt", KindFile)
	require.NoError(t, err)
	require.GreaterOrEqual(t, cluster, uint32(firstDataClus))

	payload := []byte("the quick brown fox jumps over the lazy dog")
	n, err := fs.Write("hello.txt", 0, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	got, err := fs.Read("hello.txt", 0, len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, got)

	_, size, kind, err := fs.Lookup("hello.txt")
	require.NoError(t, err)
	require.EqualValues(t, len(payload), size)
	require.Equal(t, KindFile, kind)
}

func TestOpenDirCursorMatchesList(t *testing.T) {
	fs := mustMount(t, 20)
	_, err := fs.Create("", "a.txt", KindFile)
	require.NoError(t, err)
	_, err = fs.Create("", "b.txt", KindFile)
	require.NoError(t, err)

	listed, err := fs.List("")
	require.NoError(t, err)
	require.Len(t, listed, 2)

	cursor, err := OpenDir(fs.cio, fs.g.rootDirCluster)
	require.NoError(t, err)

	var viaCursor []LogicalEntry
	for {
		e, ok := cursor.Next()
		if !ok {
			break
		}
		viaCursor = append(viaCursor, e)
	}
	require.Equal(t, listed, viaCursor)

	_, ok := cursor.Next()
	require.False(t, ok, "cursor must stay exhausted once drained")
}

func TestWriteExtendsFileAcrossClusters(t *testing.T) {
	fs := mustMount(t, 20)
	_, err := fs.Create("", "big.bin", KindFile)
	require.NoError(t, err)

	payload := make([]byte, fs.g.clusterSize*2+100)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := fs.Write("big.bin", 0, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	got, err := fs.Read("big.bin", 0, len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestWritePastEndOfFileGrowsSize(t *testing.T) {
	fs := mustMount(t, 20)
	_, err := fs.Create("", "sparse.bin", KindFile)
	require.NoError(t, err)

	_, err = fs.Write("sparse.bin", 0, []byte("abc"))
	require.NoError(t, err)
	_, size, _, err := fs.Lookup("sparse.bin")
	require.NoError(t, err)
	require.EqualValues(t, 3, size)

	_, err = fs.Write("sparse.bin", 100, []byte("xyz"))
	require.NoError(t, err)
	_, size, _, err = fs.Lookup("sparse.bin")
	require.NoError(t, err)
	require.EqualValues(t, 103, size)
}

func TestCreateDirectoryHasDotEntries(t *testing.T) {
	fs := mustMount(t, 20)
	_, err := fs.Create("", "sub", KindDirectory)
	require.NoError(t, err)

	entries, err := fs.List("sub")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, ".", entries[0].Name)
	require.Equal(t, "..", entries[1].Name)
	require.Equal(t, KindDirectory, entries[0].Kind)
}

func TestNestedDirectoryCreateAndWrite(t *testing.T) {
	fs := mustMount(t, 20)
	_, err := fs.Create("", "docs", KindDirectory)
	require.NoError(t, err)
	_, err = fs.Create("docs", "readme.txt", KindFile)
	require.NoError(t, err)

	n, err := fs.Write("docs/readme.txt", 0, []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := fs.Read("docs/readme.txt", 0, 2)
	require.NoError(t, err)
	require.Equal(t, "hi", string(got))

	entries, err := fs.List("docs")
	require.NoError(t, err)
	require.Len(t, entries, 3) // ".", "..", "readme.txt"
}

func TestLookupMissingPathReturnsNotFound(t *testing.T) {
	fs := mustMount(t, 20)
	_, _, _, err := fs.Lookup("nope.txt")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestLookupThroughFileReturnsNotADirectory(t *testing.T) {
	fs := mustMount(t, 20)
	_, err := fs.Create("", "plain.txt", KindFile)
	require.NoError(t, err)
	_, _, _, err = fs.Lookup("plain.txt/nested")
	require.True(t, errors.Is(err, ErrNotADirectory))
}

func TestReadDirectoryReturnsIsADirectory(t *testing.T) {
	fs := mustMount(t, 20)
	_, err := fs.Create("", "sub", KindDirectory)
	require.NoError(t, err)
	_, err = fs.Read("sub", 0, 10)
	require.True(t, errors.Is(err, ErrIsADirectory))
}

func TestLongFileNamesSurviveCreateAndList(t *testing.T) {
	fs := mustMount(t, 20)
	name := "a rather long descriptive filename that needs several LFN records.txt"
	_, err := fs.Create("", name, KindFile)
	require.NoError(t, err)

	entries, err := fs.List("")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, name, entries[0].Name)
}

func TestUnmountFlushesFAT(t *testing.T) {
	med := newMemMedium(buildImage(20))
	fs, err := Mount(med, MountOptions{})
	require.NoError(t, err)
	_, err = fs.Create("", "a.txt", KindFile)
	require.NoError(t, err)
	require.NoError(t, Unmount(fs))

	fs2, err := Mount(med, MountOptions{})
	require.NoError(t, err)
	entries, err := fs2.List("")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a.txt", entries[0].Name)
}
