package s3io_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net/http"
	"testing"

	"filippo.io/age"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/studio1767/ctrmgr/internal/s3io"
	"github.com/studio1767/ctrmgr/internal/s3io/s3iotest"
)

func randomData(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

func writeObject(t *testing.T, cl s3io.Client, key string, data []byte, opts s3io.WriteOptions) {
	t.Helper()
	w, err := cl.Create(context.Background(), key, int64(len(data)), opts)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Equal(t, int64(len(data)), w.Written())
}

func readObject(t *testing.T, cl s3io.Client, key string) ([]byte, int64) {
	t.Helper()
	rd, err := cl.Open(context.Background(), key)
	require.NoError(t, err)
	defer rd.Close()

	size, err := rd.Size()
	require.NoError(t, err)
	data, err := io.ReadAll(rd)
	require.NoError(t, err)
	return data, size
}

func TestPlainRoundTrip(t *testing.T) {
	api := s3iotest.New()
	cl := s3io.New(api, "bucket", s3io.Keys{})
	data := randomData(t, 70000)

	writeObject(t, cl, "export/sd/game.cia", data, s3io.WriteOptions{})

	obj, ok := api.Get("export/sd/game.cia")
	require.True(t, ok)
	require.Equal(t, data, obj.Data)

	got, size := readObject(t, cl, "export/sd/game.cia")
	require.Equal(t, int64(len(data)), size)
	require.Equal(t, data, got)

	rd, err := cl.Open(context.Background(), "export/sd/game.cia")
	require.NoError(t, err)
	defer rd.Close()
	require.Equal(t, "game.cia", rd.Name())
}

func TestCompressedEncryptedRoundTrip(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	api := s3iotest.New()
	cl := s3io.New(api, "bucket", s3io.Keys{
		Recipients: []age.Recipient{identity.Recipient()},
		Identities: []age.Identity{identity},
	})
	require.True(t, cl.HasIdentities())

	data := bytes.Repeat([]byte("ctrmgr "), 10000)
	writeObject(t, cl, "sources/app.cia", data, s3io.WriteOptions{Compress: true, Encrypt: true})

	obj, _ := api.Get("sources/app.cia")
	require.NotEqual(t, data, obj.Data)
	require.Equal(t, "gzip", obj.Metadata["ctrmgr-compress"])
	require.Equal(t, "age", obj.Metadata["ctrmgr-encrypt"])

	got, size := readObject(t, cl, "sources/app.cia")
	require.Equal(t, int64(len(data)), size)
	require.Equal(t, data, got)
}

func TestPassphraseRoundTrip(t *testing.T) {
	cl := s3io.New(s3iotest.New(), "bucket", s3io.Keys{
		Passkeys:    []string{"old", "new"},
		Passphrases: map[string]string{"old": "first", "new": "second"},
	})

	data := randomData(t, 4096)
	writeObject(t, cl, "reports/r.csv.gz", data, s3io.WriteOptions{Passphrase: true})

	got, _ := readObject(t, cl, "reports/r.csv.gz")
	require.Equal(t, data, got)
}

func TestEncodedUploadWithoutSizeIsUnknown(t *testing.T) {
	cl := s3io.New(s3iotest.New(), "bucket", s3io.Keys{})

	_, err := cl.Upload(context.Background(), "batches/b/1.yml", bytes.NewReader([]byte("name: b\n")), s3io.WriteOptions{Compress: true})
	require.NoError(t, err)

	rd, err := cl.Open(context.Background(), "batches/b/1.yml")
	require.NoError(t, err)
	defer rd.Close()

	_, err = rd.Size()
	var unknown *s3io.ErrUnknownSize
	require.ErrorAs(t, err, &unknown)

	data, err := io.ReadAll(rd)
	require.NoError(t, err)
	require.Equal(t, "name: b\n", string(data))
}

func TestEncryptWithoutRecipientsFails(t *testing.T) {
	cl := s3io.New(s3iotest.New(), "bucket", s3io.Keys{})

	_, err := cl.Create(context.Background(), "k", 1, s3io.WriteOptions{Encrypt: true})
	var norecipients *s3io.ErrNoRecipients
	require.ErrorAs(t, err, &norecipients)

	_, err = cl.Upload(context.Background(), "k", bytes.NewReader(nil), s3io.WriteOptions{Passphrase: true})
	var nopassphrase *s3io.ErrPassphraseNotFound
	require.ErrorAs(t, err, &nopassphrase)
}

func TestDecryptWithoutIdentitiesFails(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	api := s3iotest.New()
	writer := s3io.New(api, "bucket", s3io.Keys{Recipients: []age.Recipient{identity.Recipient()}})
	writeObject(t, writer, "secret", []byte("payload"), s3io.WriteOptions{Encrypt: true})

	reader := s3io.New(api, "bucket", s3io.Keys{})
	_, err = reader.Open(context.Background(), "secret")
	var noidentities *s3io.ErrIdentitiesNotFound
	require.ErrorAs(t, err, &noidentities)
}

func TestOpenMissingObject(t *testing.T) {
	cl := s3io.New(s3iotest.New(), "bucket", s3io.Keys{})

	_, err := cl.Open(context.Background(), "nothing/here.cia")
	var nosuch *s3io.ErrNoSuchObject
	require.ErrorAs(t, err, &nosuch)
	require.Equal(t, http.StatusNotFound, nosuch.TransportStatus())
}

func TestOpenArchivedObject(t *testing.T) {
	api := s3iotest.New()
	api.Put("cold.cia", []byte("x")).StorageClass = types.StorageClassGlacier
	cl := s3io.New(api, "bucket", s3io.Keys{})

	_, err := cl.Open(context.Background(), "cold.cia")
	var notdownloadable *s3io.ErrNotDownloadable
	require.ErrorAs(t, err, &notdownloadable)
}

func TestAbortLeavesNoObject(t *testing.T) {
	api := s3iotest.New()
	cl := s3io.New(api, "bucket", s3io.Keys{})

	w, err := cl.Create(context.Background(), "partial.cia", 100, s3io.WriteOptions{})
	require.NoError(t, err)
	_, err = w.Write([]byte("half"))
	require.NoError(t, err)
	w.Abort(errors.New("source failed"))

	ok, err := cl.Exists(context.Background(), "partial.cia")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListAndLatest(t *testing.T) {
	api := s3iotest.New()
	for _, key := range []string{
		"batches/nightly/20260101-000000.yml",
		"batches/nightly/20260301-000000.yml",
		"batches/nightly/20260201-000000.yml",
		"batches/other/20270101-000000.yml",
		"reports/x.csv.gz",
	} {
		api.Put(key, []byte(key))
	}
	cl := s3io.New(api, "bucket", s3io.Keys{})

	objects, err := cl.List(context.Background(), "batches/nightly/")
	require.NoError(t, err)
	require.Len(t, objects, 3)
	require.Equal(t, "batches/nightly/20260101-000000.yml", objects[0].Key)

	key, size, err := cl.LatestMatching(context.Background(), "batches/nightly/")
	require.NoError(t, err)
	require.Equal(t, "batches/nightly/20260301-000000.yml", key)
	require.Equal(t, int64(len(key)), size)

	_, _, err = cl.LatestMatching(context.Background(), "batches/missing/")
	var nomatch *s3io.ErrNoMatch
	require.ErrorAs(t, err, &nomatch)
}

func TestExists(t *testing.T) {
	api := s3iotest.New()
	api.Put("here", nil)
	cl := s3io.New(api, "bucket", s3io.Keys{})

	ok, err := cl.Exists(context.Background(), "here")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cl.Exists(context.Background(), "gone")
	require.NoError(t, err)
	require.False(t, ok)
}
