package upload

import (
	"bytes"
	"io"
	"mime"
	"os"
	"path/filepath"
)

// File is a local file queued for upload. Open may be called more than once (retries).
type File struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// FromPath stats path and returns a File that reopens it on each attempt.
func FromPath(path string) (File, error) {
	st, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	name := filepath.Base(path)
	return File{
		Name:        name,
		Size:        st.Size(),
		ContentType: contentType(name),
		Open:        func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

func FromBytes(name string, data []byte) File {
	return File{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType(name),
		Open:        func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
