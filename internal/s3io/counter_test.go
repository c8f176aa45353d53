package s3io_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/ctrmgr/internal/s3io"
)

func TestWriteCounterStartsAtZero(t *testing.T) {
	wc := s3io.NewWriteCounter(new(bytes.Buffer))

	require.Equal(t, 0, wc.TotalWrites())
	require.Equal(t, int64(0), wc.TotalBytes())
}

func TestWriteCounterCountsEachWrite(t *testing.T) {
	wbuffer := new(bytes.Buffer)
	wc := s3io.NewWriteCounter(wbuffer)

	data := make([]byte, 1024)
	_, err := rand.Read(data)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		size, err := wc.Write(data)
		require.NoError(t, err)
		require.Equal(t, len(data), size)
	}

	require.Equal(t, 5, wc.TotalWrites())
	require.Equal(t, int64(5*len(data)), wc.TotalBytes())
	require.Equal(t, data, wbuffer.Bytes()[:len(data)])
}

func TestReadCounterStartsAtZero(t *testing.T) {
	rc := s3io.NewReadCounter(new(bytes.Buffer))

	require.Equal(t, 0, rc.TotalReads())
	require.Equal(t, int64(0), rc.TotalBytes())
}

func TestReadCounterCountsEachRead(t *testing.T) {
	srcData := make([]byte, 1024*5)
	_, err := rand.Read(srcData)
	require.NoError(t, err)

	rc := s3io.NewReadCounter(bytes.NewReader(srcData))

	dstData := make([]byte, 1024)
	for i := 0; i < 5; i++ {
		size, err := rc.Read(dstData)
		require.NoError(t, err)
		require.Equal(t, len(dstData), size)
		require.Equal(t, srcData[i*1024:(i+1)*1024], dstData)
	}

	require.Equal(t, 5, rc.TotalReads())
	require.Equal(t, int64(len(srcData)), rc.TotalBytes())
}

func TestReadCounterTotalsAreSafeWhileReading(t *testing.T) {
	pr, pw := io.Pipe()
	rc := s3io.NewReadCounter(pr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(io.Discard, rc)
	}()

	chunk := make([]byte, 512)
	for i := 0; i < 16; i++ {
		_, err := pw.Write(chunk)
		require.NoError(t, err)
		require.GreaterOrEqual(t, rc.TotalBytes(), int64(0))
	}
	pw.Close()
	wg.Wait()

	require.Equal(t, int64(16*512), rc.TotalBytes())
}
