package blob

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"poemhub/internal/config"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		cfg  config.Blob
		want Driver
	}{
		{name: "default is filesystem", cfg: config.Blob{Dir: t.TempDir()}, want: DriverFilesystem},
		{name: "fs", cfg: config.Blob{Driver: config.BlobFS, Dir: t.TempDir()}, want: DriverFilesystem},
		{name: "memory", cfg: config.Blob{Driver: config.BlobMemory}, want: DriverMemory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := Open(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if store.Driver() != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, store.Driver())
			}
		})
	}
}

func TestOpenS3(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	store, err := Open(context.Background(), config.Blob{
		Driver:            config.BlobS3,
		S3Bucket:          "anthologies",
		S3Endpoint:        "http://127.0.0.1:9000",
		S3PathStyle:       true,
		S3AccessKeyID:     "minio",
		S3SecretAccessKey: "minio123",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverS3 {
		t.Fatalf("expected s3 driver, got %s", store.Driver())
	}
	if _, err := Open(context.Background(), config.Blob{Driver: config.BlobS3}); err == nil {
		t.Fatalf("expected missing bucket to fail")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.Blob{Driver: "ftp"})
	if err == nil || !strings.Contains(err.Error(), "ftp") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}

func TestSentinelsShared(t *testing.T) {
	store, err := Open(context.Background(), config.Blob{Driver: config.BlobMemory})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "exports/a.json", bytes.NewReader([]byte("{}")), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "exports/a.json", bytes.NewReader([]byte("{}")), PutOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.Head(ctx, "exports/b.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
