package utils

import "testing"

func TestExtractObjectKeyFromURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"raw key", "biz-1/items/photo.png", "biz-1/items/photo.png"},
		{"gs url", "gs://my-bucket/biz-1/items/photo.png", "biz-1/items/photo.png"},
		{"public gcs url", "https://storage.googleapis.com/my-bucket/biz-1/items/photo.png", "biz-1/items/photo.png"},
		{"bucket host url", "https://my-bucket.storage.googleapis.com/biz-1/items/photo.png", "biz-1/items/photo.png"},
		{"passthrough url", "https://api.example.com/uploads/object?key=biz-1%2Fitems%2Fphoto.png", "biz-1/items/photo.png"},
		{"traversal rejected", "biz-1/../secrets/creds.json", ""},
		{"empty", "", ""},
		{"bare filename", "photo.png", ""},
	}
	for _, tc := range cases {
		if got := ExtractObjectKeyFromURL(tc.in); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestBuildObjectAccessURLRoundTrips(t *testing.T) {
	t.Setenv("STORAGE_ACCESS_BASE_URL", "")
	t.Setenv("GCS_URL", "storage.googleapis.com")
	t.Setenv("GCS_BUCKET", "my-bucket")

	key := "biz-1/items/photo.png"
	url := BuildObjectAccessURL(key)
	if got := ExtractObjectKeyFromURL(url); got != key {
		t.Fatalf("expected the built URL to extract back to %q, got %q (url %q)", key, got, url)
	}
}
