package version

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		release []int
		pre     string
		preNum  int
		post    int
		dev     int
		epoch   int
	}{
		{"simple", "1.2.3", []int{1, 2, 3}, "", 0, -1, -1, 0},
		{"two part", "1.0", []int{1, 0}, "", 0, -1, -1, 0},
		{"single part", "2024", []int{2024}, "", 0, -1, -1, 0},
		{"four part", "1.2.3.4", []int{1, 2, 3, 4}, "", 0, -1, -1, 0},
		{"alpha", "1.0a1", []int{1, 0}, "a", 1, -1, -1, 0},
		{"beta spelled out", "1.0beta2", []int{1, 0}, "b", 2, -1, -1, 0},
		{"rc", "2.0.0rc3", []int{2, 0, 0}, "rc", 3, -1, -1, 0},
		{"rc with separator", "2.0.0-rc.3", []int{2, 0, 0}, "rc", 3, -1, -1, 0},
		{"post", "1.0.post2", []int{1, 0}, "", 0, 2, -1, 0},
		{"implicit post", "1.0-1", []int{1, 0}, "", 0, 1, -1, 0},
		{"dev", "1.0.dev4", []int{1, 0}, "", 0, -1, 4, 0},
		{"pre and dev", "1.0a1.dev2", []int{1, 0}, "a", 1, -1, 2, 0},
		{"epoch", "2!1.0", []int{1, 0}, "", 0, -1, -1, 2},
		{"v prefix", "v1.2.3", []int{1, 2, 3}, "", 0, -1, -1, 0},
		{"uppercase", "1.0RC1", []int{1, 0}, "rc", 1, -1, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}
			if len(v.Release) != len(tt.release) {
				t.Fatalf("Parse(%q) release = %v, want %v", tt.input, v.Release, tt.release)
			}
			for i := range tt.release {
				if v.Release[i] != tt.release[i] {
					t.Errorf("Parse(%q) release = %v, want %v", tt.input, v.Release, tt.release)
				}
			}
			if v.PreLabel != tt.pre || v.PreNumber != tt.preNum {
				t.Errorf("Parse(%q) pre = %q %d, want %q %d", tt.input, v.PreLabel, v.PreNumber, tt.pre, tt.preNum)
			}
			if v.Post != tt.post {
				t.Errorf("Parse(%q) post = %d, want %d", tt.input, v.Post, tt.post)
			}
			if v.Dev != tt.dev {
				t.Errorf("Parse(%q) dev = %d, want %d", tt.input, v.Dev, tt.dev)
			}
			if v.Epoch != tt.epoch {
				t.Errorf("Parse(%q) epoch = %d, want %d", tt.input, v.Epoch, tt.epoch)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"not-a-version",
		"x.y.z",
		"1.0zzz1",
	}

	for _, input := range tests {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", input)
		}
	}
}

func TestParseLocalLabel(t *testing.T) {
	v, err := Parse("1.2.3+cu118")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if v.Local != "cu118" {
		t.Errorf("Local = %q, want %q", v.Local, "cu118")
	}
}

func TestStringPreservesOriginal(t *testing.T) {
	const s = "1.0.0-RC.1"
	v := MustParse(s)
	if v.String() != s {
		t.Errorf("String() = %q, want %q", v.String(), s)
	}
}

func TestIsPrerelease(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"1.0.0", false},
		{"1.0.0.post1", false},
		{"1.0.0a1", true},
		{"1.0.0b2", true},
		{"1.0.0rc1", true},
		{"1.0.0.dev3", true},
		{"1.0.0rc1.post1", true},
	}

	for _, tt := range tests {
		if got := MustParse(tt.input).IsPrerelease(); got != tt.expected {
			t.Errorf("IsPrerelease(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}
