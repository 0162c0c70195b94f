package symbols

import (
	"golang.org/x/text/unicode/norm"

	"github.com/wippyai/wasm-backend/errors"
)

// Names tracks the cleaned identifiers of one scope and rejects two
// distinct logical names that clean to the same identifier.
type Names struct {
	scope string
	seen  map[string]string
}

// NewNames returns an empty registry for scope, which is only used in
// error messages.
func NewNames(scope string) *Names {
	return &Names{scope: scope, seen: make(map[string]string)}
}

// Add registers name under its cleaned form and returns that form.
// Identifiers are NFC-normalized first, so canonically equivalent
// spellings are the same logical name.
func (n *Names) Add(name string, clean func(string) string) (string, error) {
	logical := norm.NFC.String(name)
	cleaned := clean(logical)
	if prev, ok := n.seen[cleaned]; ok && prev != logical {
		return "", errors.NameCollision(n.scope, cleaned, prev, logical)
	}
	n.seen[cleaned] = logical
	return cleaned, nil
}

// Len returns the number of distinct cleaned identifiers.
func (n *Names) Len() int {
	return len(n.seen)
}
