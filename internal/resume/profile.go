package resume

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profile.yaml
var defaultProfile []byte

// Profile is the static part of every generated résumé.
type Profile struct {
	Name       string     `yaml:"name"`
	Headline   string     `yaml:"headline"`
	Contact    string     `yaml:"contact"`
	Summary    string     `yaml:"summary"`
	Skills     []string   `yaml:"skills"`
	Experience []Position `yaml:"experience"`
}

type Position struct {
	Title      string   `yaml:"title"`
	Company    string   `yaml:"company"`
	Period     string   `yaml:"period"`
	Highlights []string `yaml:"highlights"`
}

// LoadProfile reads a profile from path, or the embedded one when path is empty.
func LoadProfile(path string) (*Profile, error) {
	data := defaultProfile
	if path = strings.TrimSpace(path); path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read profile %q: %w", path, err)
		}
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if strings.TrimSpace(profile.Name) == "" {
		return nil, errors.New("profile name is required")
	}
	return &profile, nil
}
