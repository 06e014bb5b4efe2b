package gcp

import "testing"

func TestParseSourceURL(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in     string
		bucket string
		object string
		ok     bool
	}{
		{"gs://taxonomy-src/incoming/Master -1 -1.csv", "taxonomy-src", "incoming/Master -1 -1.csv", true},
		{"https://storage.googleapis.com/taxonomy-src/Customer%2042%207.csv", "taxonomy-src", "Customer 42 7.csv", true},
		{"https://storage.googleapis.com/taxonomy-src/a/b/c.csv", "taxonomy-src", "a/b/c.csv", true},
		{"gs://bucketonly", "", "", false},
		{"https://example.com/bucket/key.csv", "", "", false},
		{"ftp://taxonomy-src/key.csv", "", "", false},
		{"", "", "", false},
	}
	for _, c := range cases {
		ref, err := ParseSourceURL(c.in)
		if c.ok != (err == nil) {
			t.Fatalf("ParseSourceURL(%q): err=%v", c.in, err)
		}
		if !c.ok {
			continue
		}
		if ref.Bucket != c.bucket || ref.Object != c.object {
			t.Fatalf("ParseSourceURL(%q): got %s/%s", c.in, ref.Bucket, ref.Object)
		}
	}
}
