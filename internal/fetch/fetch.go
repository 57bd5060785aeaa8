package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Resolve turns a document reference into a local file path.
// Supports:
// - file://path or absolute/relative filesystem paths
// - http(s):// URLs (downloads to temp)
// - s3://bucket/key (downloads to temp via AWS SDK v2)
// When password is non-empty the fetched file is treated as an encrypted
// envelope and decrypted to another temp file.
// The returned cleanup removes every temp file created; it is never nil.
func Resolve(ctx context.Context, ref, password string) (string, func(), error) {
	// Strip optional #page fragment if present
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}

	var localPath string
	var temps []string
	var err error
	cleanup := func() {
		for _, t := range temps {
			_ = os.Remove(t)
		}
	}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		localPath, err = downloadS3ToTemp(ctx, ref)
		temps = append(temps, localPath)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		localPath, err = downloadHTTPToTemp(ctx, ref)
		temps = append(temps, localPath)
	case strings.HasPrefix(ref, "file://"):
		localPath = strings.TrimPrefix(ref, "file://")
	default:
		// treat as filesystem path
		localPath = ref
	}
	if err != nil {
		cleanup()
		return "", func() {}, err
	}

	if password != "" {
		decrypted, derr := decryptToTemp(localPath, password)
		if derr != nil {
			cleanup()
			return "", func() {}, derr
		}
		temps = append(temps, decrypted)
		localPath = decrypted
	}

	return localPath, cleanup, nil
}

func downloadHTTPToTemp(ctx context.Context, url string) (string, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}
	f, err := os.CreateTemp("", "flipbook-*.pdf")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func downloadS3ToTemp(ctx context.Context, s3url string) (string, error) {
	// s3://bucket/key
	path := strings.TrimPrefix(s3url, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 {
		return "", fmt.Errorf("invalid s3 url: %s", s3url)
	}
	bucket := path[:slash]
	key := path[slash+1:]
	if key == "" {
		return "", fmt.Errorf("invalid s3 url: %s", s3url)
	}

	// Load AWS config (region from env or default chain)
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return "", err
	}
	cli := s3.NewFromConfig(cfg)
	dl := manager.NewDownloader(cli)

	// Keep .pdf extension for downstream tooling
	f, err := os.CreateTemp("", "flipbook-s3-*.pdf")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := dl.Download(ctx, f, &s3.GetObjectInput{Bucket: &bucket, Key: &key}); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	log.Info().Str("bucket", bucket).Str("key", key).Str("file", filepath.Base(f.Name())).Msg("downloaded s3 document to temp")
	return f.Name(), nil
}
