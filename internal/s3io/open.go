package s3io

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"path"
	"strconv"
	"strings"

	"filippo.io/age"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	recipientsKey = "keys/recipients.txt"

	metaCompress = "ctrmgr-compress"
	metaEncrypt  = "ctrmgr-encrypt"
	metaScrypt   = "ctrmgr-scrypt"
	metaScryptID = "ctrmgr-scrypt-id"
	metaSize     = "ctrmgr-size"
	metaVersion  = "001"
)

var downloadable = map[string]bool{
	"":                                 true,
	string(types.StorageClassStandard): true,
	string(types.StorageClassReducedRedundancy): true,
	string(types.StorageClassStandardIa):        true,
	string(types.StorageClassOnezoneIa):         true,
	string(types.StorageClassIntelligentTiering): true,
}

// Reader streams a decoded object.
type Reader struct {
	key     string
	size    int64
	raw     *ReadCounter
	body    io.ReadCloser
	decoded io.Reader
	gz      *gzip.Reader
}

// Size is the decoded length of the object.
func (r *Reader) Size() (int64, error) {
	if r.size < 0 {
		return 0, &ErrUnknownSize{key: r.key}
	}
	return r.size, nil
}

// Name is the last element of the object key.
func (r *Reader) Name() string {
	return path.Base(r.key)
}

func (r *Reader) Read(p []byte) (int, error) {
	return r.decoded.Read(p)
}

// Transferred counts the encoded bytes fetched so far.
func (r *Reader) Transferred() int64 {
	return r.raw.TotalBytes()
}

func (r *Reader) Close() error {
	if r.gz != nil {
		r.gz.Close()
	}
	return r.body.Close()
}

func noSuchObject(key string, err error) error {
	var nosuchkey *types.NoSuchKey
	var notfound *types.NotFound
	if errors.As(err, &nosuchkey) || errors.As(err, &notfound) {
		return &ErrNoSuchObject{key: key}
	}
	return err
}

func (cl *client) checkDownloadable(ctx context.Context, key string) error {
	hoo, err := cl.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: cl.bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return noSuchObject(key, err)
	}

	sclass := string(hoo.StorageClass)
	if downloadable[sclass] {
		return nil
	}

	return &ErrNotDownloadable{
		key:          key,
		storageClass: sclass,
	}
}

// Open fetches an object and undoes whatever encoding its metadata records.
func (cl *client) Open(ctx context.Context, key string) (*Reader, error) {
	if err := cl.checkDownloadable(ctx, key); err != nil {
		return nil, err
	}

	resp, err := cl.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: cl.bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, noSuchObject(key, err)
	}

	rd := &Reader{
		key:  key,
		size: -1,
		raw:  NewReadCounter(resp.Body),
		body: resp.Body,
	}
	rd.decoded = rd.raw

	compressed := false
	encrypted := false
	passkey := ""
	plainSize := ""

	for k, v := range resp.Metadata {
		switch strings.ToLower(k) {
		case metaCompress:
			compressed = true
		case metaEncrypt:
			encrypted = true
		case metaScryptID:
			passkey = v
		case metaSize:
			plainSize = v
		}
	}

	if !compressed && !encrypted && passkey == "" {
		rd.size = aws.ToInt64(resp.ContentLength)
	} else if plainSize != "" {
		if n, err := strconv.ParseInt(plainSize, 10, 64); err == nil && n >= 0 {
			rd.size = n
		}
	}

	fail := func(err error) (*Reader, error) {
		resp.Body.Close()
		return nil, err
	}

	if encrypted && passkey == "" {
		if len(cl.keys.Identities) == 0 {
			return fail(&ErrIdentitiesNotFound{})
		}

		dreader, err := age.Decrypt(rd.decoded, cl.keys.Identities...)
		if err != nil {
			return fail(err)
		}
		rd.decoded = dreader
	}

	if passkey != "" {
		passphrase, ok := cl.keys.Passphrases[passkey]
		if !ok {
			return fail(&ErrPassphraseNotFound{operation: "download"})
		}

		identity, err := age.NewScryptIdentity(passphrase)
		if err != nil {
			return fail(err)
		}
		dreader, err := age.Decrypt(rd.decoded, identity)
		if err != nil {
			return fail(err)
		}
		rd.decoded = dreader
	}

	if compressed {
		gzreader, err := gzip.NewReader(rd.decoded)
		if err != nil {
			return fail(err)
		}
		rd.gz = gzreader
		rd.decoded = gzreader
	}

	return rd, nil
}
