// Package s3io is the remote archive: an S3 bucket holding install sources,
// exported trees, batch definitions and reports. Objects may be gzip
// compressed and age encrypted on the way up and are decoded on the way down.
package s3io

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
	"gopkg.in/yaml.v3"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// API is the subset of the S3 client used here.
type API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Client reads and writes objects in one bucket.
type Client interface {
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	LatestMatching(ctx context.Context, prefix string) (string, int64, error)

	Open(ctx context.Context, key string) (*Reader, error)
	Create(ctx context.Context, key string, size int64, opts WriteOptions) (*Writer, error)
	Upload(ctx context.Context, key string, source io.Reader, opts WriteOptions) (int64, error)

	HasIdentities() bool
}

// WriteOptions selects how an object is encoded.
type WriteOptions struct {
	Compress bool
	// Encrypt uses the bucket's recipients, Passphrase the newest secret.
	Encrypt    bool
	Passphrase bool
}

// Keys holds the age keys used to encode and decode objects.
type Keys struct {
	Recipients  []age.Recipient
	Identities  []age.Identity
	Passkeys    []string
	Passphrases map[string]string
}

type client struct {
	api    API
	bucket *string
	keys   Keys
}

// NewClient connects with an AWS profile and loads the keys. The recipients
// come from the bucket itself, identities and secrets from local files;
// every one of them is optional.
func NewClient(ctx context.Context, profile, bucket, identitiesFile, secretsFile string) (Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithSharedConfigProfile(profile))
	if err != nil {
		return nil, err
	}
	api := s3.NewFromConfig(cfg)

	recipients, err := loadRecipients(ctx, api, bucket)
	if err != nil {
		return nil, err
	}
	identities, err := loadIdentities(identitiesFile)
	if err != nil {
		return nil, err
	}
	passkeys, passphrases, err := loadSecrets(secretsFile)
	if err != nil {
		return nil, err
	}

	return New(api, bucket, Keys{
		Recipients:  recipients,
		Identities:  identities,
		Passkeys:    passkeys,
		Passphrases: passphrases,
	}), nil
}

// New wraps an existing API client.
func New(api API, bucket string, keys Keys) Client {
	return &client{
		api:    api,
		bucket: aws.String(bucket),
		keys:   keys,
	}
}

func (cl *client) HasIdentities() bool {
	return len(cl.keys.Identities) > 0
}

func loadRecipients(ctx context.Context, api API, bucket string) ([]age.Recipient, error) {
	resp, err := api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(recipientsKey),
	})
	if err != nil {
		var nosuchkey *types.NoSuchKey
		if errors.As(err, &nosuchkey) {
			return nil, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	return age.ParseRecipients(resp.Body)
}

func defaultKeyFile(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ctrmgr", name), nil
}

// openPrivate opens a key file, refusing group or world readable ones.
// A missing file returns nil.
func openPrivate(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if perms := info.Mode(); perms&0077 != 0 {
		return nil, &ErrPermissionsTooOpen{
			msg: fmt.Sprintf("permissions on %s are too open: %#o", path, perms),
		}
	}
	return os.Open(path)
}

func loadIdentities(identitiesFile string) ([]age.Identity, error) {
	if identitiesFile == "default" {
		path, err := defaultKeyFile("identities.txt")
		if err != nil {
			return nil, err
		}
		identitiesFile = path
	}

	f, err := openPrivate(identitiesFile)
	if err != nil || f == nil {
		return nil, err
	}
	defer f.Close()

	return age.ParseIdentities(f)
}

func loadSecrets(secretsFile string) ([]string, map[string]string, error) {
	if secretsFile == "default" {
		path, err := defaultKeyFile("secrets.yml")
		if err != nil {
			return nil, nil, err
		}
		secretsFile = path
	}

	f, err := openPrivate(secretsFile)
	if err != nil || f == nil {
		return nil, nil, err
	}
	defer f.Close()

	return parseSecrets(secretsFile, f)
}

func parseSecrets(name string, r io.Reader) ([]string, map[string]string, error) {
	type secret struct {
		Id         string `yaml:"id"`
		Passphrase string `yaml:"passphrase"`
	}
	var raw []secret

	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	if len(raw) == 0 {
		return nil, nil, &ErrNoSecretsFound{file: name}
	}

	passphrases := make(map[string]string)
	var passkeys []string
	for _, entry := range raw {
		passkeys = append(passkeys, entry.Id)
		passphrases[entry.Id] = entry.Passphrase
	}
	return passkeys, passphrases, nil
}
