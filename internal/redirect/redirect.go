package redirect

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	_ "embed"
)

// Placeholder tokens substituted into the redirect template.
const (
	sessionToken = "STRIPE_SESSION_ID"
	pkeyToken    = "STRIPE_PKEY"
)

//go:embed checkout.html
var template string

// Writer materialises hosted-checkout redirect documents on disk. Each
// session gets its own file, written before the opener runs and removed
// once polling concludes.
type Writer struct {
	dir string
}

// New builds a Writer rooted at dir.
func New(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write fills the template placeholders and writes the document, returning
// its path.
func (w *Writer) Write(sessionID, publishableKey string) (string, error) {
	doc := strings.ReplaceAll(template, sessionToken, sessionID)
	doc = strings.ReplaceAll(doc, pkeyToken, publishableKey)
	path := w.path(sessionID)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("write redirect document: %w", err)
	}
	return path, nil
}

// Remove deletes the session's redirect document. A document that was never
// written is not an error.
func (w *Writer) Remove(sessionID string) error {
	err := os.Remove(w.path(sessionID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove redirect document: %w", err)
	}
	return nil
}

func (w *Writer) path(sessionID string) string {
	// session ids come from the provider; strip separators anyway
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '-'
	}, sessionID)
	return filepath.Join(w.dir, "checkout-"+safe+".html")
}
