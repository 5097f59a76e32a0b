package client

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// markerLines is how far into a file the marker may appear.
const markerLines = 10

var markerPattern = regexp.MustCompile(`^.{0,5} +Asterism +\*\*\* +(\S+) +(<?)-(>?) +(\S+) +\*\*\*`)

// Mode says which direction a marked file syncs.
type Mode string

const (
	ModePush Mode = "push"
	ModePull Mode = "pull"
	ModeBoth Mode = "both"
	ModeNone Mode = ""
)

// Pushes reports whether the mode sends local saves to the server.
func (m Mode) Pushes() bool { return m == ModePush || m == ModeBoth }

// Pulls reports whether the mode fetches the server copy.
func (m Mode) Pulls() bool { return m == ModePull || m == ModeBoth }

// Marker is one file carrying an activated marker line.
type Marker struct {
	Path string
	Name string
	URL  string
	Mode Mode
}

// ScanFile reports the marker of path, if any. A marker counts only when it
// names the file itself and points at serverURL; an empty serverURL accepts
// any URL.
func ScanFile(path, serverURL string) (*Marker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := filepath.Base(path)
	scanner := bufio.NewScanner(f)
	for line := 0; line < markerLines && scanner.Scan(); line++ {
		m := markerPattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		if m[1] != name {
			continue
		}
		if serverURL != "" && strings.TrimRight(m[4], "/") != strings.TrimRight(serverURL, "/") {
			continue
		}
		return &Marker{Path: path, Name: name, URL: m[4], Mode: markerMode(m[2], m[3])}, nil
	}
	if err := scanner.Err(); err != nil && err != bufio.ErrTooLong {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return nil, nil
}

// ScanDir returns the marked files directly inside dir whose names end in
// one of extensions. An empty extension list accepts every file.
func ScanDir(dir, serverURL string, extensions []string) ([]Marker, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var markers []Marker
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !hasExtension(entry.Name(), extensions) {
			continue
		}
		m, err := ScanFile(filepath.Join(dir, entry.Name()), serverURL)
		if err != nil {
			return nil, err
		}
		if m != nil {
			markers = append(markers, *m)
		}
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].Name < markers[j].Name })
	return markers, nil
}

func markerMode(pull, push string) Mode {
	switch {
	case pull != "" && push != "":
		return ModeBoth
	case push != "":
		return ModePush
	case pull != "":
		return ModePull
	default:
		return ModeNone
	}
}

func hasExtension(name string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	for _, ext := range extensions {
		if ext != "" && strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
