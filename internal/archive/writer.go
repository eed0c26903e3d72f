package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/yeka/zip"
)

var (
	ErrWriterFinalized = errors.New("archive writer already finalized")
	ErrNoEntries       = errors.New("archive has no entries")
)

// Writer accumulates named entries into one zip held in memory. Entries are
// AES-256 encrypted when a password is set. A Writer is not safe for
// concurrent use.
type Writer struct {
	buf       bytes.Buffer
	zw        *zip.Writer
	password  string
	entries   int
	finalized bool
}

// NewWriter opens an archive. An empty password produces a plain zip.
func NewWriter(password string) *Writer {
	w := &Writer{password: password}
	w.zw = zip.NewWriter(&w.buf)
	return w
}

// Append adds one entry. Duplicate names are written as separate entries.
func (w *Writer) Append(name string, data []byte) error {
	if w.finalized {
		return ErrWriterFinalized
	}
	var (
		dst io.Writer
		err error
	)
	if w.password != "" {
		dst, err = w.zw.Encrypt(name, w.password, zip.AES256Encryption)
	} else {
		dst, err = w.zw.Create(name)
	}
	if err != nil {
		return fmt.Errorf("create entry %q: %w", name, err)
	}
	if _, err := dst.Write(data); err != nil {
		return fmt.Errorf("write entry %q: %w", name, err)
	}
	w.entries++
	return nil
}

// Entries reports how many entries were appended.
func (w *Writer) Entries() int {
	return w.entries
}

// Finalize closes the archive and returns its bytes. It may be called once.
func (w *Writer) Finalize() ([]byte, error) {
	if w.finalized {
		return nil, ErrWriterFinalized
	}
	w.finalized = true
	if w.entries == 0 {
		return nil, ErrNoEntries
	}
	if err := w.zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return w.buf.Bytes(), nil
}
