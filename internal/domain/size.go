package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Size is a named resize target. Height is always derived from Width.
type Size struct {
	Name  string
	Width int
}

// Sizes is the ordered, read-only set of resize targets.
type Sizes []Size

// DefaultSizes are used when the configuration does not list any.
var DefaultSizes = Sizes{
	{Name: "Thumbnail", Width: 150},
	{Name: "Small", Width: 320},
	{Name: "Medium", Width: 640},
	{Name: "Large", Width: 1024},
}

var sizeNamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Lookup matches a size token case-insensitively.
func (s Sizes) Lookup(token string) (Size, bool) {
	for _, size := range s {
		if strings.EqualFold(size.Name, token) {
			return size, true
		}
	}
	return Size{}, false
}

// Names returns the lower-cased size names in order.
func (s Sizes) Names() []string {
	names := make([]string, len(s))
	for i, size := range s {
		names[i] = strings.ToLower(size.Name)
	}
	return names
}

// Validate checks that every size maps to its own storage class.
func (s Sizes) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("at least one size is required")
	}
	seen := make(map[string]bool, len(s))
	for _, size := range s {
		name := strings.ToLower(size.Name)
		if !sizeNamePattern.MatchString(name) {
			return fmt.Errorf("size name %q must match %s", size.Name, sizeNamePattern)
		}
		if name == string(ClassOriginal) || name == string(ClassMetadata) {
			return fmt.Errorf("size name %q is reserved", size.Name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate size name %q", size.Name)
		}
		if size.Width <= 0 {
			return fmt.Errorf("size %q: width must be positive, got %d", size.Name, size.Width)
		}
		seen[name] = true
	}
	return nil
}
