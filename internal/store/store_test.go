package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/dans-labs/transformer/internal/errors"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "record.xsl", NormalizeName("record"))
	assert.Equal(t, "record.xsl", NormalizeName("record.xsl"))
	assert.Equal(t, "record.xslt", NormalizeName("record.xslt"))
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newStore(t)
	source := "<xsl:stylesheet version=\"1.0\"/>\n"

	require.NoError(t, s.Write("record.xsl", []byte(source)))

	got, err := s.Read("record.xsl")
	require.NoError(t, err)
	assert.Equal(t, source, got)
}

func TestReadMissing(t *testing.T) {
	s := newStore(t)

	_, err := s.Read("absent.xsl")
	require.Error(t, err)
	assert.Equal(t, svcerrors.KindNotFound, svcerrors.KindOf(err))
}

func TestWriteOverwrites(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Write("record.xsl", []byte("first")))
	require.NoError(t, s.Write("record.xsl", []byte("second")))

	got, err := s.Read("record.xsl")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestWriteRejectsInvalidUTF8(t *testing.T) {
	s := newStore(t)

	err := s.Write("record.xsl", []byte{0xff, 0xfe, 0x00})
	require.Error(t, err)
	assert.Equal(t, svcerrors.KindInvalidInput, svcerrors.KindOf(err))
}

func TestPathTraversalRejected(t *testing.T) {
	s := newStore(t)

	require.Error(t, s.Write("../escape.xsl", []byte("x")))
	_, err := s.Read("sub/dir.xsl")
	require.Error(t, err)
}

func TestFilesWalksRecursively(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Write("a.xsl", []byte("a")))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.xslt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	files, err := s.Files()
	require.NoError(t, err)
	require.Len(t, files, 2)

	names := []string{filepath.Base(files[0]), filepath.Base(files[1])}
	assert.ElementsMatch(t, []string{"a.xsl", "b.xslt"}, names)
}

func TestReadAll(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Write("a.xsl", []byte("alpha")))
	require.NoError(t, s.Write("b.xsl", []byte("beta")))

	all, err := s.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.xsl": "alpha", "b.xsl": "beta"}, all)
}

func TestReadAllKeysNestedFilesByRelativePath(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Write("top.xsl", []byte("outer")))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "top.xsl"), []byte("inner"), 0o644))

	all, err := s.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"top.xsl":                       "outer",
		filepath.Join("sub", "top.xsl"): "inner",
	}, all)
}

func TestDeleteNotImplemented(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Write("keep.xsl", []byte("x")))

	err := s.Delete("keep.xsl")
	require.Error(t, err)
	assert.Equal(t, svcerrors.KindNotImplemented, svcerrors.KindOf(err))

	// The file must survive the call.
	_, err = s.Read("keep.xsl")
	assert.NoError(t, err)
}
