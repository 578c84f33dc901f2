// Package wrapper reads the Gradle wrapper configuration of a project.
package wrapper

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PropertiesFile is the wrapper configuration, relative to a project directory.
var PropertiesFile = filepath.Join("gradle", "wrapper", "gradle-wrapper.properties")

// DistributionURLKey is the property holding the wrapper distribution location.
const DistributionURLKey = "distributionUrl"

// ErrUnrecognisedDistribution is returned when a distribution URL does not name a Gradle distribution.
var ErrUnrecognisedDistribution = errors.New("unrecognised gradle distribution")

var distributionRe = regexp.MustCompile(`gradle-(.+)-(?:bin|all)\.zip$`)

// ReadProperties reads a properties file.
func ReadProperties(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	defer file.Close()

	props, err := ParseProperties(file)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse %s", path)
	}

	return props, nil
}

// ParseProperties parses the java properties format: comments start with # or !, keys are
// separated from values by =, : or whitespace, and a trailing backslash continues a line.
func ParseProperties(r io.Reader) (map[string]string, error) {
	props := make(map[string]string)
	scanner := bufio.NewScanner(r)

	var logical strings.Builder

	for scanner.Scan() {
		line := strings.TrimLeft(scanner.Text(), " \t\f")

		if logical.Len() == 0 && (line == "" || line[0] == '#' || line[0] == '!') {
			continue
		}

		if continues(line) {
			logical.WriteString(line[:len(line)-1])

			continue
		}

		logical.WriteString(line)

		key, value, err := splitProperty(logical.String())
		if err != nil {
			return nil, err
		}

		props[key] = value
		logical.Reset()
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to read properties")
	}

	if logical.Len() > 0 {
		key, value, err := splitProperty(logical.String())
		if err != nil {
			return nil, err
		}

		props[key] = value
	}

	return props, nil
}

// continues reports whether line ends with an odd number of backslashes.
func continues(line string) bool {
	count := 0
	for i := len(line) - 1; i >= 0 && line[i] == '\\'; i-- {
		count++
	}

	return count%2 == 1
}

func splitProperty(line string) (string, string, error) {
	end := len(line)

	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '\\' {
			i++

			continue
		}

		if c == '=' || c == ':' || c == ' ' || c == '\t' || c == '\f' {
			end = i

			break
		}
	}

	key, err := unescape(line[:end])
	if err != nil {
		return "", "", err
	}

	rest := strings.TrimLeft(line[end:], " \t\f")
	if rest != "" && (rest[0] == '=' || rest[0] == ':') {
		rest = strings.TrimLeft(rest[1:], " \t\f")
	}

	value, err := unescape(rest)
	if err != nil {
		return "", "", err
	}

	return key, value, nil
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}

	var out strings.Builder

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			out.WriteByte(c)

			continue
		}

		i++

		switch s[i] {
		case 't':
			out.WriteByte('\t')
		case 'n':
			out.WriteByte('\n')
		case 'r':
			out.WriteByte('\r')
		case 'f':
			out.WriteByte('\f')
		case 'u':
			if i+5 > len(s) {
				return "", errors.Errorf("malformed \\u escape in %q", s)
			}

			code, err := strconv.ParseUint(s[i+1:i+5], 16, 16)
			if err != nil {
				return "", errors.Wrapf(err, "malformed \\u escape in %q", s)
			}

			out.WriteRune(rune(code))
			i += 4
		default:
			out.WriteByte(s[i])
		}
	}

	return out.String(), nil
}

// VersionFromDistributionURL extracts the Gradle version from a distribution URL such as
// https://services.gradle.org/distributions/gradle-7.4.2-bin.zip.
func VersionFromDistributionURL(url string) (string, error) {
	name := url
	if idx := strings.LastIndexAny(name, "/\\"); idx >= 0 {
		name = name[idx+1:]
	}

	match := distributionRe.FindStringSubmatch(name)
	if match == nil {
		return "", errors.Wrapf(ErrUnrecognisedDistribution, "%q", url)
	}

	return match[1], nil
}

// DistributionURL reads the distribution URL from the wrapper properties of the project in dir.
func DistributionURL(dir string) (string, error) {
	props, err := ReadProperties(filepath.Join(dir, PropertiesFile))
	if err != nil {
		return "", err
	}

	url, ok := props[DistributionURLKey]
	if !ok || url == "" {
		return "", errors.Wrapf(ErrUnrecognisedDistribution, "no %s in %s", DistributionURLKey, dir)
	}

	return url, nil
}
