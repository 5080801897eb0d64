package s3

import (
	"context"
	"testing"

	"brandkit-backend/internal/shared/storage/object"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "assets/logo/a.png", want: "assets/logo/a.png"},
		{name: "simple prefix", prefix: "root", key: "assets/logo/a.png", want: "root/assets/logo/a.png"},
		{name: "prefix trailing slash", prefix: "root/", key: "assets/logo/a.png", want: "root/assets/logo/a.png"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/assets/logo/a.png", want: "root/assets/logo/a.png"},
		{name: "nested prefix", prefix: "root/sub", key: "assets/logo/a.png", want: "root/sub/assets/logo/a.png"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

func TestPublicURL(t *testing.T) {
	t.Parallel()

	ref := object.Ref{Key: "assets/logo/A1/formats/jpg.jpg"}
	tests := []struct {
		name  string
		store *Store
		want  string
	}{
		{
			name:  "virtual hosted",
			store: &Store{bucket: "brand", region: "eu-west-1"},
			want:  "https://brand.s3.eu-west-1.amazonaws.com/assets/logo/A1/formats/jpg.jpg",
		},
		{
			name:  "prefixed",
			store: &Store{bucket: "brand", region: "us-east-1", prefix: "prod"},
			want:  "https://brand.s3.us-east-1.amazonaws.com/prod/assets/logo/A1/formats/jpg.jpg",
		},
		{
			name:  "custom endpoint",
			store: &Store{bucket: "brand", endpoint: "http://minio:9000"},
			want:  "http://minio:9000/brand/assets/logo/A1/formats/jpg.jpg",
		},
		{
			name:  "cdn base",
			store: &Store{bucket: "brand", endpoint: "http://minio:9000", publicBaseURL: "https://cdn.example.com"},
			want:  "https://cdn.example.com/assets/logo/A1/formats/jpg.jpg",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.store.PublicURL(context.Background(), ref)
			if err != nil {
				t.Fatalf("PublicURL: %v", err)
			}
			if got != tt.want {
				t.Fatalf("PublicURL = %q, want %q", got, tt.want)
			}
			key, ok := tt.store.KeyFromURL(got)
			if !ok || key != ref.Key {
				t.Fatalf("KeyFromURL(%q) = %q, %v", got, key, ok)
			}
		})
	}
}

func TestKeyFromURLRejectsOtherPrefix(t *testing.T) {
	t.Parallel()

	store := &Store{bucket: "brand", region: "us-east-1", prefix: "prod"}
	if _, ok := store.KeyFromURL("https://brand.s3.us-east-1.amazonaws.com/staging/a.png"); ok {
		t.Fatalf("expected url outside prefix rejected")
	}
	if _, ok := store.KeyFromURL("https://other.example.com/prod/a.png"); ok {
		t.Fatalf("expected foreign host rejected")
	}
}
