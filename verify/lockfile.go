package verify

import (
	"bufio"
	"strings"

	"github.com/keikotool/keiko/requirement"
)

// ExtractVersions recovers the package -> version map from lock artifact
// text (uv.lock layout: [[package]] records with name and version keys).
//
// The scan is deliberately permissive: a package identity is paired with the
// next version seen in the same record, and a mis-paired or truncated record
// is dropped rather than failing the run. Zero extracted entries means "no
// new information" for the caller.
func ExtractVersions(lockText string) map[string]string {
	versions := make(map[string]string)

	var pendingName string
	scanner := bufio.NewScanner(strings.NewReader(lockText))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// A new record boundary drops any unpaired identity.
		if strings.HasPrefix(line, "[[") {
			pendingName = ""
			continue
		}

		if value, ok := keyValue(line, "name"); ok {
			pendingName = requirement.NormalizeName(value)
			continue
		}

		if value, ok := keyValue(line, "version"); ok {
			if pendingName != "" && value != "" {
				versions[pendingName] = value
			}
			pendingName = ""
		}
	}

	return versions
}

// keyValue matches a `key = "value"` line and returns the unquoted value.
func keyValue(line, key string) (string, bool) {
	rest, ok := strings.CutPrefix(line, key)
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	rest, ok = strings.CutPrefix(rest, "=")
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)

	if len(rest) < 2 || rest[0] != '"' {
		return "", false
	}
	end := strings.IndexByte(rest[1:], '"')
	if end < 0 {
		// Truncated record: drop it.
		return "", false
	}
	return rest[1 : 1+end], true
}
