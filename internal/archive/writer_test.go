package archive

import (
	stdzip "archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeka/zip"
)

type zipEntry struct {
	name string
	data []byte
}

// readArchive opens every entry of data with password (empty for plain zips).
func readArchive(t *testing.T, data []byte, password string) []zipEntry {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var out []zipEntry
	for _, f := range r.File {
		if f.IsEncrypted() {
			f.SetPassword(password)
		}
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out = append(out, zipEntry{name: f.Name, data: b})
	}
	return out
}

func entryNames(entries []zipEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

func TestWriterPlainArchive(t *testing.T) {
	w := NewWriter("")
	require.NoError(t, w.Append("a.png", []byte("aaa")))
	require.NoError(t, w.Append("b.png", []byte("bbb")))
	assert.Equal(t, 2, w.Entries())

	data, err := w.Finalize()
	require.NoError(t, err)

	// Plain archives open with the standard library reader.
	r, err := stdzip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, r.File, 2)
	rc, err := r.File[1].Open()
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "b.png", r.File[1].Name)
	assert.Equal(t, "bbb", string(b))
}

func TestWriterEncryptedArchive(t *testing.T) {
	w := NewWriter("s3cret")
	require.NoError(t, w.Append("a.png", []byte("secret pixels")))
	data, err := w.Finalize()
	require.NoError(t, err)

	entries := readArchive(t, data, "s3cret")
	require.Len(t, entries, 1)
	assert.Equal(t, "secret pixels", string(entries[0].data))

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.True(t, r.File[0].IsEncrypted())
	r.File[0].SetPassword("wrong")
	assert.Error(t, openAndRead(r.File[0]), "wrong password must not decrypt")

	std, err := stdzip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	_, err = std.File[0].Open()
	assert.ErrorIs(t, err, stdzip.ErrAlgorithm, "entries are not readable without AES support and a password")
}

func openAndRead(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.ReadAll(rc)
	return err
}

func TestWriterFinalizeOnce(t *testing.T) {
	w := NewWriter("")
	require.NoError(t, w.Append("a", []byte("a")))
	_, err := w.Finalize()
	require.NoError(t, err)

	_, err = w.Finalize()
	assert.ErrorIs(t, err, ErrWriterFinalized)
	assert.ErrorIs(t, w.Append("b", []byte("b")), ErrWriterFinalized)
}

func TestWriterRejectsEmptyArchive(t *testing.T) {
	_, err := NewWriter("pw").Finalize()
	assert.ErrorIs(t, err, ErrNoEntries)
}

func TestWriterKeepsDuplicateNames(t *testing.T) {
	w := NewWriter("")
	require.NoError(t, w.Append("same.txt", []byte("first")))
	require.NoError(t, w.Append("same.txt", []byte("second")))
	data, err := w.Finalize()
	require.NoError(t, err)

	entries := readArchive(t, data, "")
	require.Len(t, entries, 2)
	assert.Equal(t, "second", string(entries[1].data))
}
