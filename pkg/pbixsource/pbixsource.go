// Package pbixsource loads a .pbix file's bytes from either a local path
// or an s3:// URL and pulls the DataModel entry out of the resulting ZIP
// container, the one entry ParsePbixDataModel needs.
package pbixsource

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/pbixdm/pbixdm/pbixerr"
)

// rangeSize is the chunk size used for the parallel S3 fetch.
const rangeSize = 8 << 20 // 8MiB

const dataModelEntry = "DataModel"

// Load returns a .pbix file's raw bytes, fetching local paths with a plain
// read and s3:// paths with a set of concurrent ranged GetObject calls.
func Load(ctx context.Context, path string, cfg *aws.Config) ([]byte, error) {
	if !strings.HasPrefix(path, "s3://") {
		return os.ReadFile(path)
	}
	return loadS3(ctx, path, cfg)
}

func loadS3(ctx context.Context, path string, cfg *aws.Config) ([]byte, error) {
	bucket, key, err := parseS3Path(path)
	if err != nil {
		return nil, err
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	client := s3.New(sess)

	head, err := client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	size := aws.Int64Value(head.ContentLength)

	out := make([]byte, size)
	group, gctx := errgroup.WithContext(ctx)
	for start := int64(0); start < size; start += rangeSize {
		start := start
		end := start + rangeSize - 1
		if end >= size {
			end = size - 1
		}
		group.Go(func() error {
			resp, err := client.GetObjectWithContext(gctx, &s3.GetObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
				Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
			})
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, err = io.ReadFull(resp.Body, out[start:end+1])
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseS3Path(path string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(path, "s3://")
	i := strings.IndexByte(rest, '/')
	if i < 0 {
		return "", "", pbixerr.E(pbixerr.FileNotFound, "pbixsource: invalid s3 path %q", path)
	}
	return rest[:i], rest[i+1:], nil
}

// ExtractDataModel opens pbixBytes as a ZIP archive and returns the raw
// bytes of its DataModel entry.
func ExtractDataModel(pbixBytes []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(pbixBytes), int64(len(pbixBytes)))
	if err != nil {
		return nil, pbixerr.E(pbixerr.MalformedHeader, "pbixsource: not a valid pbix/zip: %v", err)
	}
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, dataModelEntry) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, pbixerr.E(pbixerr.FileNotFound, "pbixsource: %s entry not found", dataModelEntry)
}
