package s3io

import (
	"compress/gzip"
	"context"
	"io"
	"strconv"

	"filippo.io/age"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Writer uploads everything written to it as one object. The object only
// exists once Close returns nil.
type Writer struct {
	pw      *io.PipeWriter
	written *WriteCounter
	done    chan struct{}
	sent    int64
	err     error
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.written.Write(p)
}

// Written counts the plain bytes accepted so far.
func (w *Writer) Written() int64 {
	return w.written.TotalBytes()
}

// Close finishes the upload and returns its result.
func (w *Writer) Close() error {
	w.pw.Close()
	<-w.done
	return w.err
}

// Abort cancels the upload; no object is created.
func (w *Writer) Abort(err error) {
	if err == nil {
		err = io.ErrClosedPipe
	}
	w.pw.CloseWithError(err)
	<-w.done
}

// Sent is the encoded size of the finished upload.
func (w *Writer) Sent() int64 {
	return w.sent
}

// Create starts a streaming upload. A non-negative size is recorded so the
// object can report its decoded length when it is read back.
func (cl *client) Create(ctx context.Context, key string, size int64, opts WriteOptions) (*Writer, error) {
	if err := cl.checkWritable(opts); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	w := &Writer{
		pw:      pw,
		written: NewWriteCounter(pw),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		w.sent, w.err = cl.upload(ctx, key, pr, size, opts)
		pr.CloseWithError(w.err)
	}()

	return w, nil
}

// Upload copies source into a new object and returns the encoded size.
func (cl *client) Upload(ctx context.Context, key string, source io.Reader, opts WriteOptions) (int64, error) {
	if err := cl.checkWritable(opts); err != nil {
		return 0, err
	}
	return cl.upload(ctx, key, source, -1, opts)
}

func (cl *client) checkWritable(opts WriteOptions) error {
	if opts.Encrypt && !opts.Passphrase && len(cl.keys.Recipients) == 0 {
		return &ErrNoRecipients{}
	}
	if opts.Passphrase && len(cl.keys.Passkeys) == 0 {
		return &ErrPassphraseNotFound{operation: "upload"}
	}
	return nil
}

// pipeThrough runs wrap over source in a goroutine and returns the far end.
func pipeThrough(source io.Reader, wrap func(io.Writer) (io.WriteCloser, error)) io.ReadCloser {
	reader, writer := io.Pipe()

	go func() {
		wc, err := wrap(writer)
		if err != nil {
			writer.CloseWithError(err)
			return
		}

		_, err = io.Copy(wc, source)

		if cerr := wc.Close(); err == nil {
			err = cerr
		}
		writer.CloseWithError(err)
	}()

	return reader
}

func (cl *client) upload(ctx context.Context, key string, source io.Reader, size int64, opts WriteOptions) (int64, error) {
	mdata := make(map[string]string)
	if size >= 0 && (opts.Compress || opts.Encrypt || opts.Passphrase) {
		mdata[metaSize] = strconv.FormatInt(size, 10)
	}

	if opts.Compress {
		mdata[metaCompress] = "gzip"
		mdata[metaCompress+"-version"] = metaVersion

		stage := pipeThrough(source, func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriter(w), nil
		})
		defer stage.Close()
		source = stage
	}

	if opts.Encrypt && !opts.Passphrase {
		mdata[metaEncrypt] = "age"
		mdata[metaEncrypt+"-version"] = metaVersion

		stage := pipeThrough(source, func(w io.Writer) (io.WriteCloser, error) {
			return age.Encrypt(w, cl.keys.Recipients...)
		})
		defer stage.Close()
		source = stage
	}

	if opts.Passphrase {
		passkey := cl.keys.Passkeys[len(cl.keys.Passkeys)-1]
		recipient, err := age.NewScryptRecipient(cl.keys.Passphrases[passkey])
		if err != nil {
			return 0, err
		}

		mdata[metaScrypt] = "age"
		mdata[metaScrypt+"-version"] = metaVersion
		mdata[metaScryptID] = passkey

		stage := pipeThrough(source, func(w io.Writer) (io.WriteCloser, error) {
			return age.Encrypt(w, recipient)
		})
		defer stage.Close()
		source = stage
	}

	// bytes actually sent after compression and encryption
	counter := NewReadCounter(source)

	// the length isn't known in advance so PutObject can't be used directly
	uploader := manager.NewUploader(cl.api)

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   cl.bucket,
		Key:      aws.String(key),
		Body:     counter,
		Metadata: mdata,
	})

	return counter.TotalBytes(), err
}
