package s3io

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Object is one listed key.
type Object struct {
	Key  string
	Size int64
}

func (cl *client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := cl.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: cl.bucket,
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	var notfound *types.NotFound
	if errors.As(err, &notfound) {
		return false, nil
	}
	var responseError *awshttp.ResponseError
	if errors.As(err, &responseError) && responseError.ResponseError.HTTPStatusCode() == 404 {
		return false, nil
	}
	return false, err
}

// List returns every key under prefix in key order.
func (cl *client) List(ctx context.Context, prefix string) ([]Object, error) {
	params := &s3.ListObjectsV2Input{
		Bucket: cl.bucket,
		Prefix: aws.String(prefix),
	}

	var objects []Object
	for {
		resp, err := cl.api.ListObjectsV2(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, obj := range resp.Contents {
			objects = append(objects, Object{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
		if !aws.ToBool(resp.IsTruncated) {
			break
		}
		params.ContinuationToken = resp.NextContinuationToken
	}

	return objects, nil
}

// LatestMatching returns the last key under prefix. Keys carry a sortable
// timestamp so the last is the newest.
func (cl *client) LatestMatching(ctx context.Context, prefix string) (string, int64, error) {
	objects, err := cl.List(ctx, prefix)
	if err != nil {
		return "", 0, err
	}
	if len(objects) == 0 {
		return "", 0, &ErrNoMatch{
			msg: fmt.Sprintf("no objects found matching '%s'", prefix),
		}
	}

	last := objects[len(objects)-1]
	return last.Key, last.Size, nil
}
