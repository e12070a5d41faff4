package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVersions(t *testing.T) {
	lockText := `version = 1
requires-python = ">=3.9"

[[package]]
name = "Requests"
version = "2.31.0"
source = { registry = "https://pypi.org/simple" }

[[package]]
name = "urllib3"
version = "2.2.1"

[[package]]
name = "charset_normalizer"
version = "3.3.2"
`

	got := ExtractVersions(lockText)

	assert.Equal(t, map[string]string{
		"requests":           "2.31.0",
		"urllib3":            "2.2.1",
		"charset-normalizer": "3.3.2",
	}, got)
}

func TestExtractVersionsSkipsMalformedRecords(t *testing.T) {
	tests := []struct {
		name     string
		lockText string
		want     map[string]string
	}{
		{
			name: "version before name is unpaired",
			lockText: `[[package]]
version = "1.0.0"
name = "late"
`,
			want: map[string]string{},
		},
		{
			name: "record boundary drops pending name",
			lockText: `[[package]]
name = "first"

[[package]]
name = "second"
version = "2.0.0"
`,
			want: map[string]string{"second": "2.0.0"},
		},
		{
			name: "truncated version value dropped",
			lockText: `[[package]]
name = "broken"
version = "1.0`,
			want: map[string]string{},
		},
		{
			name: "unquoted value dropped",
			lockText: `[[package]]
name = "pkg"
version = 1.0
`,
			want: map[string]string{},
		},
		{
			name: "similar keys do not pair",
			lockText: `[[package]]
namespace = "x"
name = "pkg"
versioned = "no"
version = "1.2.3"
`,
			want: map[string]string{"pkg": "1.2.3"},
		},
		{
			name:     "empty input",
			lockText: "",
			want:     map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractVersions(tt.lockText))
		})
	}
}
