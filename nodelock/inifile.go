package nodelock

import (
	"fmt"
	"strings"
)

// iniDocument is an ordered set of named sections holding key=value entries.
// Section and key lookups are case-insensitive; the original spelling is
// kept for output.
type iniDocument struct {
	sections []*iniSection
}

type iniSection struct {
	name   string
	keys   []string
	values map[string]string
}

func newINIDocument() *iniDocument {
	return &iniDocument{}
}

// section returns the named section or nil.
func (d *iniDocument) section(name string) *iniSection {
	for _, s := range d.sections {
		if strings.EqualFold(s.name, name) {
			return s
		}
	}
	return nil
}

// addSection returns the named section, creating it at the end if needed.
func (d *iniDocument) addSection(name string) *iniSection {
	if s := d.section(name); s != nil {
		return s
	}
	s := &iniSection{name: name, values: make(map[string]string)}
	d.sections = append(d.sections, s)
	return s
}

// set stores key=value after checking that both survive a round trip
// through the text form.
func (s *iniSection) set(key, value string) error {
	if err := checkINIKey(key); err != nil {
		return err
	}
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("%w: value of %q contains a line break", ErrUnrepresentable, key)
	}
	if _, ok := s.values[strings.ToLower(key)]; ok {
		return fmt.Errorf("%w: key %q repeats an existing key ignoring case", ErrUnrepresentable, key)
	}
	s.put(key, value)
	return nil
}

// put stores key=value; a later key equal ignoring case replaces the value.
func (s *iniSection) put(key, value string) {
	folded := strings.ToLower(key)
	if _, ok := s.values[folded]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[folded] = value
}

func (s *iniSection) get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[strings.ToLower(key)]
	return v, ok
}

// each calls fn for every entry in insertion order.
func (s *iniSection) each(fn func(key, value string) error) error {
	if s == nil {
		return nil
	}
	for _, k := range s.keys {
		if err := fn(k, s.values[strings.ToLower(k)]); err != nil {
			return err
		}
	}
	return nil
}

func (d *iniDocument) String() string {
	var b strings.Builder
	for i, s := range d.sections {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("[" + s.name + "]\n")
		for _, k := range s.keys {
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(s.values[strings.ToLower(k)])
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// parseINI reads the text form. Blank lines and lines starting with ';' are
// skipped, both "\n" and "\r\n" line endings are accepted and a repeated key
// keeps its last value.
func parseINI(text string) (*iniDocument, error) {
	d := newINIDocument()
	var current *iniSection
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "", strings.HasPrefix(trimmed, ";"):
			continue
		case strings.HasPrefix(trimmed, "["):
			if !strings.HasSuffix(trimmed, "]") || len(trimmed) < 3 {
				return nil, fmt.Errorf("%w: line %d: bad section header", ErrMalformedContent, n+1)
			}
			current = d.addSection(strings.TrimSpace(trimmed[1 : len(trimmed)-1]))
		default:
			key, value, ok := strings.Cut(line, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				return nil, fmt.Errorf("%w: line %d: expected key=value", ErrMalformedContent, n+1)
			}
			if current == nil {
				return nil, fmt.Errorf("%w: line %d: entry outside of a section", ErrMalformedContent, n+1)
			}
			current.put(key, value)
		}
	}
	return d, nil
}

func checkINIKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", ErrUnrepresentable)
	case key != strings.TrimSpace(key):
		return fmt.Errorf("%w: key %q has surrounding whitespace", ErrUnrepresentable, key)
	case strings.ContainsAny(key, "=\r\n"):
		return fmt.Errorf("%w: key %q contains '=' or a line break", ErrUnrepresentable, key)
	case strings.HasPrefix(key, "[") || strings.HasPrefix(key, ";"):
		return fmt.Errorf("%w: key %q starts with a reserved character", ErrUnrepresentable, key)
	}
	return nil
}
