package annotation

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrUnknownLabel is returned when an event label has no entry in the class
// map. This indicates a mismatched annotation/class-list pairing and is
// treated as fatal by callers.
var ErrUnknownLabel = errors.New("unknown class label")

// ClassMap maps label strings to dense class indices in [0, Len()).
// Index order follows the order of the class list it was built from.
// Class index 0 doubles as the background value in label vectors.
type ClassMap struct {
	names   []string
	indices map[string]int
}

// NewClassMap builds a ClassMap from an ordered list of class names.
func NewClassMap(names []string) *ClassMap {
	m := &ClassMap{
		names:   make([]string, len(names)),
		indices: make(map[string]int, len(names)),
	}
	copy(m.names, names)
	for i, n := range names {
		m.indices[n] = i
	}
	return m
}

// ReadClasses builds a ClassMap from a class list, one name per line.
// Line position determines the class index. Surrounding whitespace is
// stripped; blank lines are skipped.
func ReadClasses(r io.Reader) (*ClassMap, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read class list: %w", err)
	}
	return NewClassMap(names), nil
}

// LoadClasses reads a class list file from disk.
func LoadClasses(path string) (*ClassMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open class list: %w", err)
	}
	defer f.Close()
	return ReadClasses(f)
}

// Index returns the dense index for label, or an error wrapping
// ErrUnknownLabel if the label is not in the map.
func (m *ClassMap) Index(label string) (int, error) {
	idx, ok := m.indices[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return idx, nil
}

// Name returns the class name for a dense index.
func (m *ClassMap) Name(idx int) (string, bool) {
	if idx < 0 || idx >= len(m.names) {
		return "", false
	}
	return m.names[idx], true
}

// Names returns the class names in index order.
func (m *ClassMap) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Len returns the number of classes.
func (m *ClassMap) Len() int {
	return len(m.names)
}
