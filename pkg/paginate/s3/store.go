// Package s3 stores pagination entries in Amazon S3 or a compatible service.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/paginate"
)

const backendName = "s3"

// deleteBatchSize is the S3 limit for one DeleteObjects call.
const deleteBatchSize = 1000

// Client is the subset of *s3.Client the store uses.
type Client interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config configures the S3 store.
type Config struct {
	// Client is the configured S3 client.
	Client Client

	// Bucket is the S3 bucket name.
	Bucket string

	// KeyPrefix is prepended to every object key.
	// Example: "dittodav/paginate/".
	KeyPrefix string
}

// Store is a paginate.Store on S3.
//
// Each entry uses three objects:
//
//	<prefix>data/<urlhash>/<token>                 concatenated encoded items
//	<prefix>index/<urlhash>/<token>                url, created time, item byte offsets
//	<prefix>expiry/<created %020d>/<urlhash>/<token>  empty marker
//
// Get reads the index and fetches a page with a single ranged GET on the data
// object. Cleanup lists the expiry markers, which sort by creation time, and
// stops at the first one still valid. Store writes data, index and marker in
// that order; Cleanup deletes index, data and marker in that order. A Get
// that loses the race finds no index or no data and returns an empty page.
type Store struct {
	client Client
	bucket string
	prefix string
	codec  paginate.Codec
	opts   paginate.Options
}

// index is the XDR-encoded content of an index object. Offsets has one entry
// per item plus the total data length.
type index struct {
	URL       string
	CreatedAt int64
	Offsets   []uint64
}

// New checks bucket access and returns the store.
func New(ctx context.Context, cfg Config, codec paginate.Codec, opts paginate.Options) (*Store, error) {
	if cfg.Client == nil {
		return nil, errors.New("s3 pagination store: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3 pagination store: bucket is required")
	}
	opts.ApplyDefaults()
	if codec == nil {
		codec = paginate.XDRCodec{}
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &Store{
		client: cfg.Client,
		bucket: cfg.Bucket,
		prefix: cfg.KeyPrefix,
		codec:  codec,
		opts:   opts,
	}, nil
}

func urlHash(url string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(url))
}

func (s *Store) dataKey(url, token string) string {
	return s.prefix + "data/" + urlHash(url) + "/" + token
}

func (s *Store) indexKey(url, token string) string {
	return s.prefix + "index/" + urlHash(url) + "/" + token
}

func (s *Store) expiryPrefix() string {
	return s.prefix + "expiry/"
}

func (s *Store) expiryKey(createdAt int64, url, token string) string {
	return fmt.Sprintf("%s%020d/%s/%s", s.expiryPrefix(), createdAt, urlHash(url), token)
}

func (s *Store) Store(ctx context.Context, url string, items iter.Seq2[dav.ResultItem, error]) (string, int, error) {
	token, err := s.opts.NewToken()
	if err != nil {
		return "", 0, paginate.NewStoreError(backendName, "store", err)
	}

	var data bytes.Buffer
	idx := index{URL: url, Offsets: []uint64{0}}
	for it, err := range items {
		if err != nil {
			return "", 0, err
		}
		enc, err := s.codec.Encode(it)
		if err != nil {
			return "", 0, err
		}
		data.Write(enc)
		idx.Offsets = append(idx.Offsets, uint64(data.Len()))
	}
	total := len(idx.Offsets) - 1
	idx.CreatedAt = s.opts.Clock.Now().UnixNano()

	var idxBuf bytes.Buffer
	if _, err := xdr.Marshal(&idxBuf, &idx); err != nil {
		return "", 0, paginate.NewStoreError(backendName, "store", err)
	}

	dataKey := s.dataKey(url, token)
	indexKey := s.indexKey(url, token)
	expiryKey := s.expiryKey(idx.CreatedAt, url, token)

	if err := s.put(ctx, dataKey, data.Bytes()); err != nil {
		return "", 0, paginate.NewStoreError(backendName, "store", err)
	}
	if err := s.put(ctx, indexKey, idxBuf.Bytes()); err != nil {
		_ = s.deleteKeys(ctx, []string{dataKey})
		return "", 0, paginate.NewStoreError(backendName, "store", err)
	}
	if err := s.put(ctx, expiryKey, nil); err != nil {
		_ = s.deleteKeys(ctx, []string{indexKey, dataKey})
		return "", 0, paginate.NewStoreError(backendName, "store", err)
	}

	logger.Debug("Pagination store: stored %d items (%s) for %s in s3://%s/%s",
		total, humanize.IBytes(uint64(data.Len())), url, s.bucket, dataKey)
	return token, total, nil
}

func (s *Store) put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// get returns the object body, or found=false if it does not exist.
func (s *Store) get(ctx context.Context, key, byteRange string) ([]byte, bool, error) {
	in := &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}
	if byteRange != "" {
		in.Range = aws.String(byteRange)
	}

	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return body, true, nil
}

func (s *Store) Get(ctx context.Context, url, token string, offset, count int) ([]dav.ResultItem, error) {
	if token == "" || strings.Contains(token, "/") {
		return nil, nil
	}

	raw, ok, err := s.get(ctx, s.indexKey(url, token), "")
	if err != nil {
		return nil, paginate.NewStoreError(backendName, "get", err)
	}
	if !ok {
		return nil, nil
	}

	var idx index
	if _, err := xdr.Unmarshal(bytes.NewReader(raw), &idx); err != nil {
		return nil, paginate.NewStoreError(backendName, "get", fmt.Errorf("decode index: %w", err))
	}
	if idx.URL != url || s.opts.Expired(time.Unix(0, idx.CreatedAt)) {
		return nil, nil
	}

	start, end, ok := paginate.Window(len(idx.Offsets)-1, offset, count)
	if !ok {
		return nil, nil
	}

	first, last := idx.Offsets[start], idx.Offsets[end]
	var data []byte
	if last > first {
		data, ok, err = s.get(ctx, s.dataKey(url, token), fmt.Sprintf("bytes=%d-%d", first, last-1))
		if err != nil {
			return nil, paginate.NewStoreError(backendName, "get", err)
		}
		if !ok || uint64(len(data)) != last-first {
			return nil, nil
		}
	}

	out := make([]dav.ResultItem, 0, end-start)
	for i := start; i < end; i++ {
		it, err := s.codec.Decode(data[idx.Offsets[i]-first : idx.Offsets[i+1]-first])
		if err != nil {
			return nil, paginate.NewStoreError(backendName, "get", err)
		}
		out = append(out, it)
	}
	return out, nil
}

// Cleanup walks the expiry markers in creation order.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	cutoff := s.opts.Cutoff().UnixNano()
	prefix := s.expiryPrefix()
	removed := 0

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return removed, paginate.NewStoreError(backendName, "cleanup", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			created, hash, token, ok := parseExpiryKey(strings.TrimPrefix(key, prefix))
			if !ok {
				logger.Warn("Pagination store: ignoring malformed expiry marker %s", key)
				continue
			}
			if created > cutoff {
				return removed, nil
			}

			keys := []string{
				s.prefix + "index/" + hash + "/" + token,
				s.prefix + "data/" + hash + "/" + token,
				key,
			}
			for _, k := range keys {
				if err := s.deleteKeys(ctx, []string{k}); err != nil {
					return removed, paginate.NewStoreError(backendName, "cleanup", err)
				}
			}
			removed++
		}
	}
	return removed, nil
}

// parseExpiryKey splits "<created>/<hash>/<token>".
func parseExpiryKey(rest string) (created int64, hash, token string, ok bool) {
	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return 0, "", "", false
	}
	if _, err := fmt.Sscanf(parts[0], "%d", &created); err != nil {
		return 0, "", "", false
	}
	return created, parts[1], parts[2], true
}

func (s *Store) Clear(ctx context.Context) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return paginate.NewStoreError(backendName, "clear", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	for i := 0; i < len(keys); i += deleteBatchSize {
		end := min(i+deleteBatchSize, len(keys))
		if err := s.deleteKeys(ctx, keys[i:end]); err != nil {
			return paginate.NewStoreError(backendName, "clear", err)
		}
	}
	return nil
}

func (s *Store) deleteKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	objects := make([]types.ObjectIdentifier, len(keys))
	for i, k := range keys {
		objects[i] = types.ObjectIdentifier{Key: aws.String(k)}
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("delete objects: %w", err)
	}
	if len(out.Errors) > 0 {
		e := out.Errors[0]
		return fmt.Errorf("delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (s *Store) Close() error {
	return nil
}
