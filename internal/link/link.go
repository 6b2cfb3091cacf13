// Package link recognizes and converts the identifier strings that connect
// documents and files: bare document URLs, file URLs and content-typed
// (wrapped) document URLs.
//
// Only parsed Link values cross package boundaries; raw strings are parsed
// once at the edge with Parse.
package link

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// DocumentScheme prefixes every document URL.
	DocumentScheme = "hypermerge:/"
	// FileScheme prefixes every file URL.
	FileScheme = "hyperfile:/"
	// ContentTypeKey is the query key that marks a wrapped document URL.
	ContentTypeKey = "pushpinContentType"
)

var (
	documentRe = regexp.MustCompile(`^hypermerge:/(\w+)$`)
	fileRe     = regexp.MustCompile(`^hyperfile:/(?://)?(\w+)$`)
	wrappedRe  = regexp.MustCompile(`^hypermerge:/(\w+)\?` + ContentTypeKey + `=([^&=]+)$`)
	idRe       = regexp.MustCompile(`^\w+$`)
)

var (
	ErrUnrecognized       = errors.New("link: unrecognized identifier")
	ErrAlreadyWrapped     = errors.New("link: identifier is already wrapped")
	ErrEmptyContentType   = errors.New("link: empty content type")
	ErrInvalidContentType = errors.New("link: content type contains '&' or '='")
)

// Kind discriminates the three identifier shapes.
type Kind int

const (
	KindDocument Kind = iota + 1
	KindFile
	KindWrapped
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindFile:
		return "file"
	case KindWrapped:
		return "wrapped"
	default:
		return "unknown"
	}
}

// Link is a parsed identifier. ContentType is set only for KindWrapped.
type Link struct {
	Kind        Kind
	ID          string
	ContentType string
}

// Document returns the bare document link for id.
func Document(id string) Link {
	return Link{Kind: KindDocument, ID: id}
}

// File returns the file link for id.
func File(id string) Link {
	return Link{Kind: KindFile, ID: id}
}

// IsZero reports whether l was never set.
func (l Link) IsZero() bool {
	return l.Kind == 0
}

// Bare strips the content type from a wrapped link. Other kinds are
// returned unchanged.
func (l Link) Bare() Link {
	if l.Kind == KindWrapped {
		return Document(l.ID)
	}
	return l
}

// String renders l in its canonical wire form.
func (l Link) String() string {
	switch l.Kind {
	case KindDocument:
		return DocumentURL(l.ID)
	case KindFile:
		return FileURL(l.ID)
	case KindWrapped:
		return DocumentURL(l.ID) + "?" + ContentTypeKey + "=" + l.ContentType
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Link) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Link) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Parse classifies s. A string matches at most one shape.
func Parse(s string) (Link, error) {
	if m := documentRe.FindStringSubmatch(s); m != nil {
		return Document(m[1]), nil
	}
	if m := fileRe.FindStringSubmatch(s); m != nil {
		return File(m[1]), nil
	}
	if m := wrappedRe.FindStringSubmatch(s); m != nil {
		return Link{Kind: KindWrapped, ID: m[1], ContentType: m[2]}, nil
	}
	return Link{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
}

// IsDocumentURL reports whether s is a bare document URL.
func IsDocumentURL(s string) bool {
	return documentRe.MatchString(s)
}

// IsFileURL reports whether s is a file URL.
func IsFileURL(s string) bool {
	return fileRe.MatchString(s)
}

// IsWrappedURL reports whether s is a content-typed document URL.
func IsWrappedURL(s string) bool {
	return wrappedRe.MatchString(s)
}

// IsLink reports whether s has any recognized identifier shape.
func IsLink(s string) bool {
	return IsDocumentURL(s) || IsFileURL(s) || IsWrappedURL(s)
}

// DocumentURL renders a document id as a URL.
func DocumentURL(id string) string {
	return DocumentScheme + id
}

// FileURL renders a file id as a URL.
func FileURL(id string) string {
	return FileScheme + id
}

// ID extracts the raw id from any recognized identifier.
func ID(s string) (string, error) {
	l, err := Parse(s)
	if err != nil {
		return "", err
	}
	return l.ID, nil
}

// Wrap annotates a bare document URL with a content type.
func Wrap(contentType, docURL string) (string, error) {
	if !strings.HasPrefix(docURL, DocumentScheme) {
		return "", fmt.Errorf("%w: expected a document URL, got %q", ErrUnrecognized, docURL)
	}
	if strings.Contains(docURL, ContentTypeKey) {
		return "", fmt.Errorf("%w: %q", ErrAlreadyWrapped, docURL)
	}
	if contentType == "" {
		return "", ErrEmptyContentType
	}
	if strings.ContainsAny(contentType, "&=") {
		return "", fmt.Errorf("%w: %q", ErrInvalidContentType, contentType)
	}
	id := strings.TrimPrefix(docURL, DocumentScheme)
	if !idRe.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrUnrecognized, docURL)
	}
	return Link{Kind: KindWrapped, ID: id, ContentType: contentType}.String(), nil
}

// ParseWrapped splits a wrapped URL into its bare document URL and
// content type.
func ParseWrapped(s string) (docURL, contentType string, err error) {
	m := wrappedRe.FindStringSubmatch(s)
	if m == nil {
		return "", "", fmt.Errorf("%w: not a wrapped document URL: %q", ErrUnrecognized, s)
	}
	return DocumentURL(m[1]), m[2], nil
}

// Unwrap returns the bare document URL behind s. Bare document URLs pass
// through unchanged.
func Unwrap(s string) (string, error) {
	l, err := Parse(s)
	if err != nil {
		return "", err
	}
	if l.Kind == KindFile {
		return "", fmt.Errorf("%w: file URL has no document: %q", ErrUnrecognized, s)
	}
	return l.Bare().String(), nil
}
