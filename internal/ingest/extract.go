package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"
)

// ErrUnsupported marks files whose type cannot be converted to text.
var ErrUnsupported = errors.New("unsupported file type")

var converted = map[string]bool{
	".pdf":  true,
	".docx": true,
	".doc":  true,
	".rtf":  true,
	".odt":  true,
}

// ExtractText returns the plain text of a source document.
func ExtractText(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case ext == ".txt" || ext == ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	case converted[ext]:
		res, err := docconv.ConvertPath(path)
		if err != nil {
			return "", fmt.Errorf("convert %s: %w", path, err)
		}
		return res.Body, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}
