package backend

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		path string
		want Kind
	}{
		{"s3", "s3://bucket/prefix", ObjectStore},
		{"s3a", "s3a://bucket/prefix", ObjectStore},
		{"s3n upper case scheme", "S3N://bucket", ObjectStore},
		{"hdfs", "hdfs://namenode:8020/backup", HierarchicalFS},
		{"file", "file:///tmp/data", HierarchicalFS},
		{"bare absolute path", "/tmp/data", HierarchicalFS},
		{"relative path", "tmp/data", Unknown},
		{"gcs", "gs://bucket/prefix", Unknown},
		{"empty", "", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.path); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    Location
		wantErr bool
	}{
		{
			name: "bucket only",
			path: "s3://mybucket",
			want: Location{Kind: ObjectStore, Scheme: "s3", Authority: "mybucket"},
		},
		{
			name: "bucket with nested prefix and trailing slash",
			path: "s3://mybucket/prefix/subdir/",
			want: Location{Kind: ObjectStore, Scheme: "s3", Authority: "mybucket", Path: "prefix/subdir"},
		},
		{
			name: "multiple trailing slashes",
			path: "s3n://mybucket/prefix///",
			want: Location{Kind: ObjectStore, Scheme: "s3n", Authority: "mybucket", Path: "prefix"},
		},
		{
			name:    "empty bucket",
			path:    "s3:///prefix",
			wantErr: true,
		},
		{
			name: "hdfs with namenode",
			path: "hdfs://nn:8020/backup/2014/",
			want: Location{Kind: HierarchicalFS, Scheme: "hdfs", Authority: "nn:8020", Path: "/backup/2014"},
		},
		{
			name: "hdfs default namenode",
			path: "hdfs:///backup",
			want: Location{Kind: HierarchicalFS, Scheme: "hdfs", Path: "/backup"},
		},
		{
			name: "bare path",
			path: "/tmp/data/",
			want: Location{Kind: HierarchicalFS, Scheme: "file", Path: "/tmp/data"},
		},
		{
			name:    "unsupported scheme",
			path:    "http://example.com/file",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.path, got, tt.want)
			}
		})
	}
}

func TestLocationJoinAndString(t *testing.T) {
	tests := []struct {
		base string
		rel  string
		want string
	}{
		{"s3://bucket/prefix/", "a/b.txt", "s3://bucket/prefix/a/b.txt"},
		{"s3://bucket", "a/b.txt", "s3://bucket/a/b.txt"},
		{"s3://bucket/prefix", "empty/", "s3://bucket/prefix/empty"},
		{"hdfs://nn:8020/backup", "a/b.txt", "hdfs://nn:8020/backup/a/b.txt"},
		{"file:///tmp/x", "", "file:///tmp/x"},
		{"/tmp/x", "y", "file:///tmp/x/y"},
	}

	for _, tt := range tests {
		t.Run(tt.base+"+"+tt.rel, func(t *testing.T) {
			got, err := Join(tt.base, tt.rel)
			if err != nil {
				t.Fatalf("Join() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Join(%q, %q) = %q, want %q", tt.base, tt.rel, got, tt.want)
			}
		})
	}
}

func TestLocationParent(t *testing.T) {
	loc, err := Parse("s3://bucket/dir/file.txt")
	if err != nil {
		t.Fatal(err)
	}
	parent, name := loc.Parent()
	if parent.String() != "s3://bucket/dir" || name != "file.txt" {
		t.Errorf("Parent() = %q, %q", parent.String(), name)
	}

	loc, _ = Parse("s3://bucket/file.txt")
	parent, name = loc.Parent()
	if parent.String() != "s3://bucket" || name != "file.txt" {
		t.Errorf("Parent() = %q, %q", parent.String(), name)
	}

	loc, _ = Parse("hdfs://nn/a/b")
	parent, name = loc.Parent()
	if parent.String() != "hdfs://nn/a" || name != "b" {
		t.Errorf("Parent() = %q, %q", parent.String(), name)
	}
}

func TestRequireSupported(t *testing.T) {
	if err := RequireSupported("s3://b/p", "hdfs://nn/p"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := RequireSupported("s3://b/p", "gs://b/p")
	if !errors.Is(err, ErrUnsupportedBackend) {
		t.Errorf("expected ErrUnsupportedBackend, got %v", err)
	}
	if err := RequireSupported(""); !errors.Is(err, ErrUnsupportedBackend) {
		t.Errorf("expected ErrUnsupportedBackend for empty path, got %v", err)
	}
}
