package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const (
	Safety       = "safety"
	Analysis     = "analysis"
	Conversation = "conversation"

	// SupportedVersion is the only prompt file format version understood.
	SupportedVersion = 1
)

var required = []string{Safety, Analysis, Conversation}

//go:embed prompts.yaml
var defaultPrompts []byte

// Set is a versioned collection of prompt templates.
type Set struct {
	Version   int               `yaml:"version"`
	Templates map[string]string `yaml:"templates"`
}

// Default returns the embedded prompt set.
func Default() (*Set, error) {
	return Parse(defaultPrompts)
}

// Load reads a prompt set from path, or the embedded set when path is empty.
func Load(path string) (*Set, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file %q: %w", path, err)
	}

	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("prompts file %q: %w", path, err)
	}
	return set, nil
}

func Parse(data []byte) (*Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}

	if set.Version != SupportedVersion {
		return nil, fmt.Errorf("unsupported prompts version %d", set.Version)
	}

	var missing []string
	for _, name := range required {
		if strings.TrimSpace(set.Templates[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing prompt templates: %s", strings.Join(missing, ", "))
	}

	return &set, nil
}

// Render substitutes {{KEY}} tokens in the named template in a single pass,
// so substituted values are never scanned for further tokens.
func (s *Set) Render(name string, values map[string]string) (string, error) {
	if s == nil {
		return "", errors.New("prompt set is nil")
	}
	template, ok := s.Templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}

	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(template)), nil
}

// SanitizeLine collapses value to a single line, neutralises square
// brackets and caps it at maxRunes.
func SanitizeLine(value string, maxRunes int) string {
	value = strings.Join(strings.FieldsFunc(value, unicode.IsSpace), " ")
	value = neutralize(value)
	return truncateRunes(value, maxRunes)
}

// SanitizeBlock renders free text as an indented bullet list, one bullet per
// non-empty line. The rune cap applies to the text, not the bullet markers.
func SanitizeBlock(value string, maxRunes int) string {
	value = truncateRunes(strings.TrimSpace(value), maxRunes)

	var lines []string
	for _, line := range strings.Split(value, "\n") {
		line = SanitizeLine(line, 0)
		if line == "" {
			continue
		}
		lines = append(lines, "  - "+line)
	}

	if len(lines) == 0 {
		return "  - none"
	}
	return strings.Join(lines, "\n")
}

func neutralize(value string) string {
	return strings.NewReplacer("[", "(", "]", ")").Replace(value)
}

func truncateRunes(value string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(value) <= maxRunes {
		return value
	}
	return string([]rune(value)[:maxRunes])
}
