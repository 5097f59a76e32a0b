package client

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// SettingsFile is the name of the settings file shipped in every bundle.
const SettingsFile = "asterism.env"

// Settings describe the exercise a bundle directory belongs to.
type Settings struct {
	URL      string
	Exercise string
	Files    []string
}

// LoadSettings reads dir/asterism.env.
func LoadSettings(dir string) (*Settings, error) {
	values, err := godotenv.Read(filepath.Join(dir, SettingsFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", SettingsFile, err)
	}
	s := &Settings{
		URL:      strings.TrimRight(values["ASTERISM_URL"], "/"),
		Exercise: values["ASTERISM_EXERCISE"],
	}
	for _, f := range strings.Split(values["ASTERISM_FILES"], ",") {
		if f = strings.TrimSpace(f); f != "" {
			s.Files = append(s.Files, f)
		}
	}
	if s.URL == "" {
		return nil, errors.New("ASTERISM_URL is missing from " + SettingsFile)
	}
	return s, nil
}

// Extensions returns the distinct extensions of the marked files, used to
// narrow the directory scan.
func (s *Settings) Extensions() []string {
	seen := make(map[string]struct{})
	var exts []string
	for _, f := range s.Files {
		ext := filepath.Ext(f)
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	return exts
}
