package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// queuePoster collects posted functions so tests run them explicitly.
type queuePoster chan func()

func (q queuePoster) post(f func()) bool {
	q <- f
	return true
}

func (q queuePoster) next(t *testing.T) func() {
	t.Helper()
	select {
	case f := <-q:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("nothing posted")
		return nil
	}
}

func TestCheck(t *testing.T) {
	a := NewAcquirer(nil, nil, zerolog.Nop())
	png := MemFile{FileName: "plan.png", MIME: "image/png"}

	tests := []struct {
		name       string
		file       File
		src        Source
		authorized bool
		want       Verdict
	}{
		{"signed out picker", png, SourcePicker, false, Unauthorized},
		{"signed out drop", png, SourceDrop, false, Unauthorized},
		{"signed out without file", nil, SourcePicker, false, Unauthorized},
		{"no file", nil, SourcePicker, true, NoFile},
		{"png drop", png, SourceDrop, true, Admitted},
		{"jpeg drop", MemFile{FileName: "a.jpg", MIME: "image/jpeg"}, SourceDrop, true, Admitted},
		{"mixed case drop", MemFile{FileName: "a.jpg", MIME: "Image/JPEG"}, SourceDrop, true, Admitted},
		{"gif drop", MemFile{FileName: "a.gif", MIME: "image/gif"}, SourceDrop, true, TypeRejected},
		{"untyped drop", MemFile{FileName: "a"}, SourceDrop, true, TypeRejected},
		{"gif picker", MemFile{FileName: "a.gif", MIME: "image/gif"}, SourcePicker, true, Admitted},
		{"pdf picker", MemFile{FileName: "a.pdf", MIME: "application/pdf"}, SourcePicker, true, Admitted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Check(tt.file, tt.src, tt.authorized))
		})
	}
}

func TestCheck_CustomDropTypes(t *testing.T) {
	a := NewAcquirer(nil, []string{"image/webp"}, zerolog.Nop())
	assert.Equal(t, Admitted, a.Check(MemFile{MIME: "image/webp"}, SourceDrop, true))
	assert.Equal(t, TypeRejected, a.Check(MemFile{MIME: "image/png"}, SourceDrop, true))
}

func TestAccept_PostsDataURL(t *testing.T) {
	q := make(queuePoster, 1)
	a := NewAcquirer(q.post, nil, zerolog.Nop())

	var got Result
	v := a.Accept(context.Background(), MemFile{FileName: "plan.png", MIME: "image/png", Data: pngHeader}, SourceDrop, true,
		func(r Result) { got = r })
	require.Equal(t, Admitted, v)

	q.next(t)()
	require.NoError(t, got.Err)
	assert.True(t, strings.HasPrefix(got.DataURL, "data:image/png;base64,"))

	mime, data, err := ParseDataURL(got.DataURL)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, pngHeader, data)
}

func TestAccept_RejectedFileIsNotRead(t *testing.T) {
	q := make(queuePoster, 1)
	a := NewAcquirer(q.post, nil, zerolog.Nop())

	called := false
	v := a.Accept(context.Background(), MemFile{FileName: "a.gif", MIME: "image/gif"}, SourceDrop, true,
		func(Result) { called = true })
	assert.Equal(t, TypeRejected, v)

	select {
	case <-q:
		t.Fatal("rejected file must not post a result")
	case <-time.After(20 * time.Millisecond):
	}
	assert.False(t, called)
}

func TestAccept_ReadErrorIsReported(t *testing.T) {
	q := make(queuePoster, 1)
	a := NewAcquirer(q.post, nil, zerolog.Nop())
	boom := errors.New("disk on fire")

	var got Result
	a.Accept(context.Background(), MemFile{FileName: "plan.png", MIME: "image/png", Err: boom}, SourcePicker, true,
		func(r Result) { got = r })

	q.next(t)()
	assert.ErrorIs(t, got.Err, boom)
	assert.Empty(t, got.DataURL)
}

func TestEncode(t *testing.T) {
	t.Run("sniffs untyped files", func(t *testing.T) {
		url, err := Encode(context.Background(), MemFile{FileName: "plan", Data: pngHeader})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"), url)
	})

	t.Run("drops type parameters", func(t *testing.T) {
		url, err := Encode(context.Background(), MemFile{FileName: "a.txt", MIME: "text/plain; charset=utf-8", Data: []byte("hi")})
		require.NoError(t, err)
		assert.Equal(t, "data:text/plain;base64,aGk=", url)
	})

	t.Run("reads disk files", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plan.png")
		require.NoError(t, os.WriteFile(path, pngHeader, 0644))

		url, err := Encode(context.Background(), DiskFile{FileName: "plan.png", MIME: "image/png", Path: path})
		require.NoError(t, err)
		assert.Equal(t, DataURL("image/png", pngHeader), url)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Encode(ctx, MemFile{FileName: "a.png", MIME: "image/png", Data: pngHeader})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDataURL(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,AQID", DataURL("image/jpeg", []byte{1, 2, 3}))
	assert.Equal(t, "data:application/octet-stream;base64,", DataURL("", nil))
}

func TestParseDataURL_Malformed(t *testing.T) {
	for _, s := range []string{
		"",
		"image/png;base64,AAAA",
		"data:image/png;base64",
		"data:image/png,AAAA",
		"data:image/png;base64,!!!",
	} {
		_, _, err := ParseDataURL(s)
		assert.ErrorIs(t, err, ErrNotDataURL, s)
	}
}

func TestParseSource(t *testing.T) {
	assert.Equal(t, SourceDrop, ParseSource("drop"))
	assert.Equal(t, SourceDrop, ParseSource(" DROP "))
	assert.Equal(t, SourcePicker, ParseSource("picker"))
	assert.Equal(t, SourcePicker, ParseSource(""))
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "admitted", Admitted.String())
	assert.Equal(t, "unauthorized", Unauthorized.String())
	assert.Equal(t, "no_file", NoFile.String())
	assert.Equal(t, "type_rejected", TypeRejected.String())
}
