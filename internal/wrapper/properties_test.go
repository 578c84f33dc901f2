package wrapper_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/gradle-usage/internal/wrapper"
)

const generatedProperties = `distributionBase=GRADLE_USER_HOME
distributionPath=wrapper/dists
distributionUrl=https\://services.gradle.org/distributions/gradle-7.4.2-bin.zip
zipStoreBase=GRADLE_USER_HOME
zipStorePath=wrapper/dists
`

func TestParseProperties(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input    string
		expected map[string]string
	}{
		"generated wrapper file": {
			input: generatedProperties,
			expected: map[string]string{
				"distributionBase": "GRADLE_USER_HOME",
				"distributionPath": "wrapper/dists",
				"distributionUrl":  "https://services.gradle.org/distributions/gradle-7.4.2-bin.zip",
				"zipStoreBase":     "GRADLE_USER_HOME",
				"zipStorePath":     "wrapper/dists",
			},
		},
		"comments and blank lines": {
			input:    "# a comment\n! another one\n\n   \nkey=value\n",
			expected: map[string]string{"key": "value"},
		},
		"separators": {
			input: "a=1\nb:2\nc 3\nd = 4\ne\t:\t5\nf\n",
			expected: map[string]string{
				"a": "1", "b": "2", "c": "3", "d": "4", "e": "5", "f": "",
			},
		},
		"escaped key": {
			input:    `my\ key\=x=value` + "\n",
			expected: map[string]string{"my key=x": "value"},
		},
		"escapes in value": {
			input:    `k=tab\there\nnew \u0041\\` + "\n",
			expected: map[string]string{"k": "tab\there\nnew A\\"},
		},
		"continuation": {
			input:    "k=first, \\\n    second, \\\n    third\nnext=1",
			expected: map[string]string{"k": "first, second, third", "next": "1"},
		},
		"continuation looks like comment": {
			input:    "k=a\\\n#b\n",
			expected: map[string]string{"k": "a#b"},
		},
		"last key wins": {
			input:    "k=1\nk=2\n",
			expected: map[string]string{"k": "2"},
		},
		"windows line endings": {
			input:    "k=v\r\nother=w\r\n",
			expected: map[string]string{"k": "v", "other": "w"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := wrapper.ParseProperties(strings.NewReader(tc.input))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParsePropertiesMalformedUnicode(t *testing.T) {
	t.Parallel()

	_, err := wrapper.ParseProperties(strings.NewReader(`k=\u00`))
	require.Error(t, err)

	_, err = wrapper.ParseProperties(strings.NewReader(`k=\uzzzz`))
	require.Error(t, err)
}

func TestVersionFromDistributionURL(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		url      string
		expected string
		err      error
	}{
		"bin":       {url: "https://services.gradle.org/distributions/gradle-7.4.2-bin.zip", expected: "7.4.2"},
		"all":       {url: "https://services.gradle.org/distributions/gradle-6.9-all.zip", expected: "6.9"},
		"rc":        {url: "https://services.gradle.org/distributions/gradle-7.5-rc-1-bin.zip", expected: "7.5-rc-1"},
		"milestone": {url: "https://services.gradle.org/distributions/gradle-8.0-milestone-2-all.zip", expected: "8.0-milestone-2"},
		"snapshot": {
			url:      "https://services.gradle.org/distributions-snapshots/gradle-8.0-20221101000000+0000-bin.zip",
			expected: "8.0-20221101000000+0000",
		},
		"local file":   {url: `file\:C:\dists\gradle-5.6.4-bin.zip`, expected: "5.6.4"},
		"mirror":       {url: "https://repo.example.com/gradle/gradle-8.1.1-bin.zip?token=1", err: wrapper.ErrUnrecognisedDistribution},
		"not a gradle": {url: "https://example.com/dist/tool-1.0.zip", err: wrapper.ErrUnrecognisedDistribution},
		"empty":        {url: "", err: wrapper.ErrUnrecognisedDistribution},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := wrapper.VersionFromDistributionURL(tc.url)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestDistributionURL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := wrapper.DistributionURL(dir)
	require.ErrorIs(t, err, os.ErrNotExist)

	propsFile := filepath.Join(dir, wrapper.PropertiesFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(propsFile), 0o755))
	require.NoError(t, os.WriteFile(propsFile, []byte("zipStoreBase=GRADLE_USER_HOME\n"), 0o600))

	_, err = wrapper.DistributionURL(dir)
	require.ErrorIs(t, err, wrapper.ErrUnrecognisedDistribution)

	require.NoError(t, os.WriteFile(propsFile, []byte(generatedProperties), 0o600))

	url, err := wrapper.DistributionURL(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://services.gradle.org/distributions/gradle-7.4.2-bin.zip", url)
}
