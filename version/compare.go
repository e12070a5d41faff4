package version

// Compare compares two versions following PEP 440 precedence.
// Returns -1 if v < other, 0 if equal, 1 if v > other.
// Local version labels are ignored.
func (v *Version) Compare(other *Version) int {
	if v.Epoch != other.Epoch {
		return cmpInt(v.Epoch, other.Epoch)
	}

	// Compare release segments, padding the shorter side with zeros.
	n := len(v.Release)
	if len(other.Release) > n {
		n = len(other.Release)
	}
	for i := 0; i < n; i++ {
		a, b := 0, 0
		if i < len(v.Release) {
			a = v.Release[i]
		}
		if i < len(other.Release) {
			b = other.Release[i]
		}
		if a != b {
			return cmpInt(a, b)
		}
	}

	// Same release: dev < pre < final < post.
	ra, rb := v.suffixRank(), other.suffixRank()
	if ra != rb {
		return cmpInt(ra, rb)
	}

	switch ra {
	case rankPre:
		if v.PreLabel != other.PreLabel {
			if prePhaseRank(v.PreLabel) < prePhaseRank(other.PreLabel) {
				return -1
			}
			return 1
		}
		if v.PreNumber != other.PreNumber {
			return cmpInt(v.PreNumber, other.PreNumber)
		}
		// A post-release of a pre-release sorts above the bare pre-release.
		if v.Post != other.Post {
			return cmpInt(v.Post, other.Post)
		}
	case rankPost:
		if v.Post != other.Post {
			return cmpInt(v.Post, other.Post)
		}
	case rankDev:
		if v.Dev != other.Dev {
			return cmpInt(v.Dev, other.Dev)
		}
	}

	// A dev-release of a pre/post release sorts below its non-dev form.
	da, db := v.Dev, other.Dev
	if da < 0 {
		da = int(^uint(0) >> 1)
	}
	if db < 0 {
		db = int(^uint(0) >> 1)
	}
	return cmpInt(da, db)
}

const (
	rankDev = iota
	rankPre
	rankFinal
	rankPost
)

// suffixRank orders the suffix families: dev-only < pre < final < post.
func (v *Version) suffixRank() int {
	switch {
	case v.PreLabel != "":
		return rankPre
	case v.Post >= 0:
		return rankPost
	case v.Dev >= 0:
		return rankDev
	default:
		return rankFinal
	}
}

func prePhaseRank(label string) int {
	switch label {
	case "a":
		return 0
	case "b":
		return 1
	default: // "rc"
		return 2
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// IsNewer reports whether candidate is a strictly newer version than baseline.
//
// An empty baseline always reports true. If either operand fails to parse the
// answer is also true: an unparsable version must not block an update, so the
// comparison fails open.
func IsNewer(candidate, baseline string) bool {
	if baseline == "" {
		return true
	}

	cv, err := Parse(candidate)
	if err != nil {
		return true
	}
	bv, err := Parse(baseline)
	if err != nil {
		return true
	}

	return cv.Compare(bv) > 0
}
