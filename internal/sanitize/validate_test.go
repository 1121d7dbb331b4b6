package sanitize

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestValidatePath(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		path    string
		root    string
		wantErr error
	}{
		{name: "empty", path: "", wantErr: ErrEmptyPath},
		{name: "traversal", path: "../etc/passwd", wantErr: ErrPathTraversal},
		{name: "embedded traversal", path: "data/../../x", wantErr: ErrPathTraversal},
		{name: "dots in name allowed", path: "data/..hidden"},
		{name: "within root", path: filepath.Join(root, "crisis.yaml"), root: root},
		{name: "outside root", path: "/etc/passwd", root: root, wantErr: ErrPathTraversal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePath(tt.path, tt.root)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !filepath.IsAbs(got) {
				t.Errorf("%q is not absolute", got)
			}
		})
	}
}

func TestValidateSessionID(t *testing.T) {
	valid := []string{"s1", "3f2c9a7e-0f6b-4d5e-9b1a-2c3d4e5f6a7b", "abc_DEF-123"}
	for _, id := range valid {
		if err := ValidateSessionID(id); err != nil {
			t.Errorf("ValidateSessionID(%q) = %v", id, err)
		}
	}
	invalid := []string{"", "-leading", "has space", "slash/id", "semi;colon"}
	for _, id := range invalid {
		if err := ValidateSessionID(id); !errors.Is(err, ErrInvalidSessionID) {
			t.Errorf("ValidateSessionID(%q) = %v, want ErrInvalidSessionID", id, err)
		}
	}
}

func TestNormalizeRegion(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"us", "US", false},
		{" gb ", "GB", false},
		{"US-CA", "US-CA", false},
		{"", "", false},
		{"usa", "", true},
		{"u1", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeRegion(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeRegion(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeRegion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
