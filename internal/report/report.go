// Package report turns resolved projects into the usage report.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	TextFormat = "text"
	JSONFormat = "json"
	YAMLFormat = "yaml"
)

// BaseName is the report file name without its extension.
const BaseName = "usage"

// ErrUnknownFormat is returned by Write for an unsupported format.
var ErrUnknownFormat = errors.New("unknown report format")

// Entry is a project and the Gradle version it uses.
type Entry struct {
	Path    string `json:"path"    yaml:"path"`
	Version string `json:"version" yaml:"version"`
}

// Count is the number of projects using a version.
type Count struct {
	Version  string `json:"version"  yaml:"version"`
	Projects int    `json:"projects" yaml:"projects"`
}

type Report struct {
	Projects []Entry `json:"projects" yaml:"projects"`
	Summary  []Count `json:"summary"  yaml:"summary"`
}

// Formats lists the formats accepted by Write.
func Formats() []string {
	return []string{TextFormat, JSONFormat, YAMLFormat}
}

// Build sorts entries by path and counts projects per version, most used first.
func Build(entries []Entry) Report {
	projects := make([]Entry, len(entries))
	copy(projects, entries)

	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].Path < projects[j].Path
	})

	counts := map[string]int{}
	for _, entry := range projects {
		counts[entry.Version]++
	}

	summary := make([]Count, 0, len(counts))
	for v, n := range counts {
		summary = append(summary, Count{Version: v, Projects: n})
	}

	sort.Slice(summary, func(i, j int) bool {
		if summary[i].Projects != summary[j].Projects {
			return summary[i].Projects > summary[j].Projects
		}

		return summary[i].Version < summary[j].Version
	})

	return Report{Projects: projects, Summary: summary}
}

// Width is the length of the longest version.
func (r Report) Width() int {
	width := 0
	for _, entry := range r.Projects {
		width = max(width, len(entry.Version))
	}

	return width
}

// Lines renders the text report.
func Lines(r Report) []string {
	width := r.Width()
	lines := make([]string, 0, len(r.Projects)+len(r.Summary)+2)

	lines = append(lines, fmt.Sprintf("Found %d Gradle projects", len(r.Projects)))
	for _, entry := range r.Projects {
		lines = append(lines, fmt.Sprintf("  %*s  %s", width, entry.Version, entry.Path))
	}

	lines = append(lines, "Summary")
	for _, count := range r.Summary {
		lines = append(lines, fmt.Sprintf("  %*s used by %d projects", width, count.Version, count.Projects))
	}

	return lines
}

// Encode renders the report in format.
func Encode(format string, r Report) ([]byte, error) {
	switch format {
	case "", TextFormat:
		return []byte(strings.Join(Lines(r), "\n") + "\n"), nil
	case JSONFormat:
		var buf bytes.Buffer

		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")

		err := enc.Encode(r)
		if err != nil {
			return nil, errors.Wrap(err, "unable to encode json report")
		}

		return buf.Bytes(), nil
	case YAMLFormat:
		var buf bytes.Buffer

		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)

		err := enc.Encode(r)
		if err != nil {
			return nil, errors.Wrap(err, "unable to encode yaml report")
		}

		if err := enc.Close(); err != nil {
			return nil, errors.Wrap(err, "unable to encode yaml report")
		}

		return buf.Bytes(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
}

// FileName returns the report file name for format.
func FileName(format string) string {
	switch format {
	case JSONFormat:
		return BaseName + ".json"
	case YAMLFormat:
		return BaseName + ".yaml"
	default:
		return BaseName + ".txt"
	}
}

// Write writes the report to dir, creating it when needed, and returns the file path.
func Write(dir, format string, r Report) (string, error) {
	content, err := Encode(format, r)
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return "", errors.Wrapf(err, "unable to create report directory %s", dir)
	}

	path := filepath.Join(dir, FileName(format))

	err = os.WriteFile(path, content, 0o644) //nolint:gosec
	if err != nil {
		return "", errors.Wrapf(err, "unable to write report %s", path)
	}

	return path, nil
}
