// Package ingest turns a picked or dropped file into a base64 data URL.
package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wailsapp/mimetype"
)

// Source is how the file reached the widget.
type Source string

const (
	SourcePicker Source = "picker"
	SourceDrop   Source = "drop"
)

// ParseSource maps a form value to a Source. Unknown values are treated as
// picker selections.
func ParseSource(s string) Source {
	if strings.EqualFold(strings.TrimSpace(s), string(SourceDrop)) {
		return SourceDrop
	}
	return SourcePicker
}

// DefaultDropTypes are the MIME types accepted from drag and drop.
var DefaultDropTypes = []string{"image/jpeg", "image/png"}

// File is a named, typed byte source.
type File interface {
	Name() string
	Type() string
	Open() (io.ReadCloser, error)
}

// MemFile is a File held in memory.
type MemFile struct {
	FileName string
	MIME     string
	Data     []byte
	Err      error // returned by Open when set
}

func (f MemFile) Name() string { return f.FileName }
func (f MemFile) Type() string { return f.MIME }

func (f MemFile) Open() (io.ReadCloser, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}

// DiskFile is a File backed by a path on disk.
type DiskFile struct {
	FileName string
	MIME     string
	Path     string
}

func (f DiskFile) Name() string { return f.FileName }
func (f DiskFile) Type() string { return f.MIME }

func (f DiskFile) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// Verdict is the outcome of the acceptance gate.
type Verdict int

const (
	Admitted Verdict = iota
	Unauthorized
	NoFile
	TypeRejected
)

func (v Verdict) String() string {
	switch v {
	case Admitted:
		return "admitted"
	case Unauthorized:
		return "unauthorized"
	case NoFile:
		return "no_file"
	case TypeRejected:
		return "type_rejected"
	default:
		return "unknown"
	}
}

// Result is the single outcome of a read: a full data URL or an error.
type Result struct {
	DataURL string
	Err     error
}

// Poster delivers a function to the owner's goroutine.
type Poster func(func()) bool

// Acquirer gates and reads files.
type Acquirer struct {
	post    Poster
	allowed map[string]struct{}
	log     zerolog.Logger
}

// NewAcquirer creates an acquirer that delivers read results through post.
// A nil or empty allowed list falls back to DefaultDropTypes.
func NewAcquirer(post Poster, allowed []string, log zerolog.Logger) *Acquirer {
	if len(allowed) == 0 {
		allowed = DefaultDropTypes
	}
	set := make(map[string]struct{}, len(allowed))
	for _, t := range allowed {
		set[normalizeType(t)] = struct{}{}
	}
	return &Acquirer{post: post, allowed: set, log: log}
}

// Check applies the gate without reading. Anything but Admitted is a
// silent no-op for the caller.
func (a *Acquirer) Check(f File, src Source, authorized bool) Verdict {
	if !authorized {
		return Unauthorized
	}
	if f == nil {
		return NoFile
	}
	if src == SourceDrop {
		if _, ok := a.allowed[normalizeType(f.Type())]; !ok {
			return TypeRejected
		}
	}
	return Admitted
}

// Accept gates the file and, when admitted, reads it in the background.
// done is posted exactly once with the result; it is never called for a
// rejected file.
func (a *Acquirer) Accept(ctx context.Context, f File, src Source, authorized bool, done func(Result)) Verdict {
	v := a.Check(f, src, authorized)
	if v != Admitted {
		a.log.Debug().Str("verdict", v.String()).Str("source", string(src)).Msg("file ignored")
		return v
	}

	go func() {
		url, err := Encode(ctx, f)
		if err != nil {
			a.log.Warn().Err(err).Str("file", f.Name()).Msg("file read failed")
		}
		a.post(func() { done(Result{DataURL: url, Err: err}) })
	}()
	return v
}

// Encode reads all of f and returns it as a data URL.
func Encode(ctx context.Context, f File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", f.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", f.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mime := normalizeType(f.Type())
	if mime == "" {
		mime = normalizeType(mimetype.Detect(data).String())
	}
	return DataURL(mime, data), nil
}

// DataURL formats data as data:<mime>;base64,<payload>.
func DataURL(mime string, data []byte) string {
	if mime == "" {
		mime = "application/octet-stream"
	}
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mime) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mime)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// ErrNotDataURL is returned by ParseDataURL for malformed input.
var ErrNotDataURL = errors.New("not a base64 data URL")

// ParseDataURL splits a base64 data URL into its MIME type and bytes.
func ParseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrNotDataURL, err)
	}
	return mime, data, nil
}

func normalizeType(t string) string {
	t, _, _ = strings.Cut(t, ";")
	return strings.ToLower(strings.TrimSpace(t))
}
