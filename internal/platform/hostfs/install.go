package hostfs

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/studio1767/ctrmgr/internal/cia"
	"github.com/studio1767/ctrmgr/internal/platform"
)

// bytes kept from the start of a stream to find its title id
const headLimit = 0x4000

// titleInstall stages a CIA in a host file. The title shows up as pending
// as soon as its id has streamed past.
type titleInstall struct {
	c     *Console
	media platform.MediaType
	file  string
	f     *os.File

	mu     sync.Mutex
	head   []byte
	id     uint64
	haveID bool
	done   bool
}

func (c *Console) BeginInstall(media platform.MediaType) (platform.InstallHandle, error) {
	if _, err := titleBucket(media); err != nil {
		return nil, err
	}

	n := c.staged.Add(1)
	file := relPath("staging", fmt.Sprintf("%d-%d.cia", os.Getpid(), n))
	f, err := os.OpenFile(c.hostPath(file), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &titleInstall{c: c, media: media, file: file, f: f}, nil
}

func (t *titleInstall) WriteAt(p []byte, off int64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return 0, platform.ResultInvalidState
	}

	n, err := t.f.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	if !t.haveID {
		if err := t.sniff(p[:n], off); err != nil {
			return n, err
		}
	}
	return n, nil
}

// sniff collects the head of the stream and registers the pending title once
// the id is readable.
func (t *titleInstall) sniff(p []byte, off int64) error {
	if off != int64(len(t.head)) || len(t.head) >= headLimit {
		return nil
	}
	room := headLimit - len(t.head)
	if len(p) > room {
		p = p[:room]
	}
	t.head = append(t.head, p...)

	id, err := cia.TitleID(t.head)
	if err != nil {
		if len(t.head) >= headLimit {
			return err
		}
		return nil
	}

	t.id, t.haveID = id, true
	bucket, _ := pendingBucket(t.media)
	return t.c.set(bucket, idKey(id), pendingRecord{ID: id, Media: t.media, File: t.file})
}

func (t *titleInstall) Finalize() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return platform.ResultAlreadyInstalled
	}

	st, err := t.f.Stat()
	if err != nil {
		return err
	}
	info, err := cia.Inspect(t.f, st.Size())
	if err != nil {
		t.discard()
		return err
	}
	if err := t.f.Close(); err != nil {
		t.discard()
		return err
	}

	file := relPath("titles", strings.ToLower(t.media.String()), idKey(info.TitleID)+".cia")
	if err := os.Rename(t.c.hostPath(t.file), t.c.hostPath(file)); err != nil {
		t.discard()
		return err
	}

	rec := titleRecord{
		ID:          info.TitleID,
		Media:       t.media,
		Version:     info.Version,
		ProductCode: info.ProductCode,
		File:        file,
	}
	if info.SMDH != nil {
		rec.Meta = info.SMDH.Metadata()
	}

	bucket, _ := titleBucket(t.media)
	if err := t.c.set(bucket, idKey(info.TitleID), rec); err != nil {
		return err
	}
	// the embedded ticket installs with the title
	if err := t.c.set(bucketTickets, idKey(info.TitleID), ticketRecord{ID: info.TitleID}); err != nil {
		return err
	}
	t.clearPending()
	t.done = true

	t.c.log.Debug().Str("title", cia.FormatID(info.TitleID)).Str("media", t.media.String()).Msg("title installed")
	return nil
}

func (t *titleInstall) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return platform.ResultInvalidState
	}
	t.discard()
	return nil
}

// discard drops the staged file and the pending entry. Callers hold t.mu.
func (t *titleInstall) discard() {
	t.f.Close()
	removeIfExists(t.c.hostPath(t.file))
	t.clearPending()
	t.done = true
}

func (t *titleInstall) clearPending() {
	if t.haveID {
		bucket, _ := pendingBucket(t.media)
		t.c.delete(bucket, idKey(t.id))
	}
}

// ticketInstall buffers a ticket in memory; tickets are small.
type ticketInstall struct {
	c *Console

	mu   sync.Mutex
	buf  []byte
	done bool
}

func (c *Console) BeginTicketInstall() (platform.InstallHandle, error) {
	return &ticketInstall{c: c}, nil
}

func (t *ticketInstall) WriteAt(p []byte, off int64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return 0, platform.ResultInvalidState
	}
	if need := int(off) + len(p); need > len(t.buf) {
		grown := make([]byte, need)
		copy(grown, t.buf)
		t.buf = grown
	}
	copy(t.buf[off:], p)
	return len(p), nil
}

func (t *ticketInstall) Finalize() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return platform.ResultAlreadyInstalled
	}
	t.done = true

	id, err := cia.TicketTitleID(t.buf)
	if err != nil {
		return err
	}
	file := relPath("tickets", idKey(id)+".tik")
	if err := os.WriteFile(t.c.hostPath(file), t.buf, 0644); err != nil {
		return err
	}
	return t.c.set(bucketTickets, idKey(id), ticketRecord{ID: id, File: file})
}

func (t *ticketInstall) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return platform.ResultInvalidState
	}
	t.done = true
	t.buf = nil
	return nil
}
