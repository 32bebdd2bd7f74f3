package r2client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeS3 struct {
	objects map[string][]byte
	etags   map[string]string
	lastPut *s3.PutObjectInput
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, etags: map[string]string{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
		ETag: aws.String(`"` + f.etags[aws.ToString(in.Key)] + `"`),
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound"}
	}
	return &s3.HeadObjectOutput{ETag: aws.String(`"` + f.etags[aws.ToString(in.Key)] + `"`)}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.lastPut = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, _ := io.ReadAll(in.Body)
	key := aws.ToString(in.Key)
	f.objects[key] = data
	f.etags[key] = "etag-" + key
	return &s3.PutObjectOutput{ETag: aws.String(`"etag-` + key + `"`)}, nil
}

func TestNew_RequiresAllFields(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{Endpoint: "https://x", BucketName: "b"}); err == nil {
		t.Error("New() should fail without credentials")
	}
}

func TestClient_UploadDownloadHead(t *testing.T) {
	t.Parallel()

	fake := newFakeS3()
	c := &Client{s3: fake, bucket: "menus"}
	ctx := context.Background()

	etag, err := c.Upload(ctx, "catalog.yaml", strings.NewReader("triggers: []"), "application/yaml", "")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if etag != "etag-catalog.yaml" {
		t.Errorf("Upload() etag = %q, quotes should be trimmed", etag)
	}
	if fake.lastPut.IfMatch != nil {
		t.Error("unconditional upload should not send If-Match")
	}

	body, etag, err := c.Download(ctx, "catalog.yaml")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "triggers: []" || etag != "etag-catalog.yaml" {
		t.Errorf("Download() = %q, %q", data, etag)
	}

	head, err := c.HeadObject(ctx, "catalog.yaml")
	if err != nil || head != "etag-catalog.yaml" {
		t.Errorf("HeadObject() = %q, %v", head, err)
	}
}

func TestClient_NotFound(t *testing.T) {
	t.Parallel()

	c := &Client{s3: newFakeS3(), bucket: "menus"}

	if _, _, err := c.Download(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download() error = %v, want ErrNotFound", err)
	}
	if _, err := c.HeadObject(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("HeadObject() error = %v, want ErrNotFound", err)
	}
}

func TestClient_ConditionalUpload(t *testing.T) {
	t.Parallel()

	fake := newFakeS3()
	fake.putErr = &smithy.GenericAPIError{Code: "PreconditionFailed"}
	c := &Client{s3: fake, bucket: "menus"}

	_, err := c.Upload(context.Background(), "catalog.yaml", strings.NewReader("x"), "", "old-etag")
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("Upload() error = %v, want ErrPreconditionFailed", err)
	}
	if got := aws.ToString(fake.lastPut.IfMatch); got != `"old-etag"` {
		t.Errorf("If-Match = %q", got)
	}
}

func TestCompressDecompress(t *testing.T) {
	t.Parallel()

	original := []byte(strings.Repeat("- key: chicken\n  responses: [chicken-carousel]\n", 200))

	compressed, err := Compress(original)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if len(compressed) >= len(original) {
		t.Errorf("compressed size %d should be smaller than %d", len(compressed), len(original))
	}

	got, err := DecompressStream(bytes.NewReader(compressed), 1<<20)
	if err != nil {
		t.Fatalf("DecompressStream() error = %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Error("round trip mismatch")
	}

	if _, err := DecompressStream(bytes.NewReader(compressed), 100); err == nil {
		t.Error("DecompressStream() should refuse output beyond the limit")
	}
}
