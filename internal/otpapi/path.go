package otpapi

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidSegment is returned when a path parameter cannot be used as a
// single backend path segment.
var ErrInvalidSegment = errors.New("otpapi: invalid path segment")

// Template is a backend relative path such as
// "protected/users/{self}/methods/{method}/secret/". Literal text is kept
// as is, every {name} placeholder is escaped as exactly one path segment.
type Template struct {
	raw   string
	parts []templatePart
}

type templatePart struct {
	literal string
	param   string
}

// ParseTemplate parses raw into a Template.
func ParseTemplate(raw string) (Template, error) {
	t := Template{raw: raw}
	rest := raw
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.ContainsRune(rest, '}') {
				return Template{}, fmt.Errorf("otpapi: template %q: unexpected '}'", raw)
			}
			t.parts = append(t.parts, templatePart{literal: rest})
			break
		}
		if open > 0 {
			if strings.ContainsRune(rest[:open], '}') {
				return Template{}, fmt.Errorf("otpapi: template %q: unexpected '}'", raw)
			}
			t.parts = append(t.parts, templatePart{literal: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return Template{}, fmt.Errorf("otpapi: template %q: unterminated placeholder", raw)
		}
		name := rest[open+1 : open+end]
		if name == "" || strings.ContainsAny(name, "{/") {
			return Template{}, fmt.Errorf("otpapi: template %q: bad placeholder %q", raw, name)
		}
		t.parts = append(t.parts, templatePart{param: name})
		rest = rest[open+end+1:]
	}
	return t, nil
}

// MustParseTemplate is like ParseTemplate but panics on error. It is meant
// for static route tables built at startup.
func MustParseTemplate(raw string) Template {
	t, err := ParseTemplate(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the raw template.
func (t Template) String() string {
	return t.raw
}

// Params lists the placeholder names in order of appearance.
func (t Template) Params() []string {
	var names []string
	for _, p := range t.parts {
		if p.param != "" {
			names = append(names, p.param)
		}
	}
	return names
}

// Expand resolves every placeholder and returns the escaped relative path.
func (t Template) Expand(resolve func(name string) (string, error)) (string, error) {
	var b strings.Builder
	for _, p := range t.parts {
		if p.param == "" {
			b.WriteString(p.literal)
			continue
		}
		value, err := resolve(p.param)
		if err != nil {
			return "", err
		}
		segment, err := EscapeSegment(value)
		if err != nil {
			return "", fmt.Errorf("%w: %s", err, p.param)
		}
		b.WriteString(segment)
	}
	return b.String(), nil
}

// EscapeSegment escapes value so that it stays a single path segment.
// Empty values and dot segments are rejected since they would change the
// shape of the backend path.
func EscapeSegment(value string) (string, error) {
	switch value {
	case "", ".", "..":
		return "", ErrInvalidSegment
	}
	return url.PathEscape(value), nil
}
