// Package s3iotest provides an in-memory S3 API for tests.
package s3iotest

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Object is a stored object.
type Object struct {
	Data         []byte
	Metadata     map[string]string
	StorageClass types.StorageClass
}

// API keeps objects in memory. Uploads below the part size only ever reach
// PutObject so the multipart calls are left unimplemented.
type API struct {
	manager.UploadAPIClient

	mu       sync.Mutex
	objects  map[string]*Object
	PageSize int
}

// New returns an empty bucket listing two keys per page.
func New() *API {
	return &API{
		objects:  make(map[string]*Object),
		PageSize: 2,
	}
}

// Put stores data under key.
func (f *API) Put(key string, data []byte) *Object {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj := &Object{Data: data}
	f.objects[key] = obj
	return obj
}

// Get returns the object at key.
func (f *API) Get(key string) (*Object, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	return obj, ok
}

func (f *API) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	obj := f.Put(aws.ToString(in.Key), data)
	obj.Metadata = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *API) HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := f.Get(aws.ToString(in.Key))
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.Data))),
		Metadata:      obj.Metadata,
		StorageClass:  obj.StorageClass,
	}, nil
}

func (f *API) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := f.Get(aws.ToString(in.Key))
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.Data)),
		ContentLength: aws.Int64(int64(len(obj.Data))),
		Metadata:      obj.Metadata,
	}, nil
}

func (f *API) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			keys = append(keys, key)
		}
	}
	f.mu.Unlock()
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := min(start+f.PageSize, len(keys))

	out := &s3.ListObjectsV2Output{}
	for _, key := range keys[start:end] {
		obj, _ := f.Get(key)
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(key),
			Size: aws.Int64(int64(len(obj.Data))),
		})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}
