package util

import (
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "logo.png", want: "logo.png"},
		{name: "traversal", in: "../../etc/passwd", want: "__etc_passwd"},
		{name: "backslashes", in: `dir\logo.svg`, want: "dir_logo.svg"},
		{name: "reserved", in: `a<b>c:d"e|f?g*h.jpg`, want: "a_b_c_d_e_f_g_h.jpg"},
		{name: "null byte", in: "lo\x00go.png", want: "logo.png"},
		{name: "empty", in: "   ", want: "file"},
		{name: "only dots", in: "..", want: "file"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeFileName(tt.in); got != tt.want {
				t.Fatalf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFileNameKeepsExtensionWhenTruncating(t *testing.T) {
	t.Parallel()

	got := SanitizeFileName(strings.Repeat("a", 300) + ".webp")
	if len(got) != 255 {
		t.Fatalf("expected 255 bytes, got %d", len(got))
	}
	if !strings.HasSuffix(got, ".webp") {
		t.Fatalf("expected extension kept, got %q", got[len(got)-10:])
	}
}

func TestCleanKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "assets/logo/A1/formats/webp.webp", want: "assets/logo/A1/formats/webp.webp"},
		{in: "/assets/logo/a.png", want: "assets/logo/a.png"},
		{in: "assets/./logo//a.png", want: "assets/logo/a.png"},
		{in: "../secret", wantErr: true},
		{in: "assets/../../secret", wantErr: true},
		{in: `assets\a.png`, wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := CleanKey(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("CleanKey(%q) expected error, got %q", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CleanKey(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("CleanKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
