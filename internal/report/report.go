// Package report writes one CSV line per install item and stores finished
// reports in the remote archive under reports/<name>/.
package report

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/studio1767/ctrmgr/internal/cia"
	"github.com/studio1767/ctrmgr/internal/install"
	"github.com/studio1767/ctrmgr/internal/s3io"
)

type ErrNoSuchReport struct {
	msg string
}

func (e *ErrNoSuchReport) Error() string {
	return e.msg
}

// Line is one parsed report line.
type Line struct {
	Time    int64
	Size    uint64
	TitleID uint64
	Type    string
	Media   string
	Status  string
	Source  string
}

// Writer implements install.Recorder.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	now   func() time.Time
	lines int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, now: time.Now}
}

// Lines counts the lines written.
func (rw *Writer) Lines() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.lines
}

// Record writes size, time, title id, container, media, status and the
// escaped source of one item.
func (rw *Writer) Record(index int, o install.Outcome) error {
	media := ""
	if o.Status != install.NotStarted && o.Type != cia.Unknown {
		media = strings.ToLower(o.Media.String())
	}

	line := fmt.Sprintf("%d,%d,%016x,%s,%s,%s,%s\n",
		rw.now().Unix(),
		o.Size,
		o.TitleID,
		strings.ToLower(o.Type.String()),
		media,
		strings.ReplaceAll(o.Status.String(), " ", "-"),
		url.PathEscape(o.Source),
	)

	rw.mu.Lock()
	defer rw.mu.Unlock()
	if _, err := io.WriteString(rw.w, line); err != nil {
		return err
	}
	rw.lines++
	return nil
}

var _ install.Recorder = (*Writer)(nil)

// Read parses a report.
func Read(r io.Reader) ([]Line, error) {
	var lines []Line
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		fields := strings.Split(scanner.Text(), ",")
		if len(fields) != 7 {
			return nil, fmt.Errorf("report line %d: expected 7 fields, got %d", n, len(fields))
		}

		var l Line
		var err error
		if l.Time, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
			return nil, fmt.Errorf("report line %d: %w", n, err)
		}
		if l.Size, err = strconv.ParseUint(fields[1], 10, 64); err != nil {
			return nil, fmt.Errorf("report line %d: %w", n, err)
		}
		if l.TitleID, err = strconv.ParseUint(fields[2], 16, 64); err != nil {
			return nil, fmt.Errorf("report line %d: %w", n, err)
		}
		l.Type, l.Media, l.Status = fields[3], fields[4], fields[5]
		if l.Source, err = url.PathUnescape(fields[6]); err != nil {
			return nil, fmt.Errorf("report line %d: %w", n, err)
		}
		lines = append(lines, l)
	}
	return lines, scanner.Err()
}

// Key names a report uploaded at now.
func Key(name string, now time.Time) string {
	stamp := now.Format("2006-01-02")
	seconds := (((now.Hour() * 60) + now.Minute()) * 60) + now.Second()
	return fmt.Sprintf("reports/%s/%s-%s-%05d.csv.gz", name, name, stamp, seconds)
}

// Upload stores a finished report, compressed.
func Upload(ctx context.Context, client s3io.Client, source io.Reader, name string, opts s3io.WriteOptions) (string, error) {
	key := Key(name, time.Now())
	opts.Compress = true

	_, err := client.Upload(ctx, key, source, opts)
	return key, err
}

// Latest fetches the newest report stored under name.
func Latest(ctx context.Context, client s3io.Client, name string) ([]Line, string, error) {
	key, _, err := client.LatestMatching(ctx, fmt.Sprintf("reports/%s/", name))
	if err != nil {
		var nomatch *s3io.ErrNoMatch
		if errors.As(err, &nomatch) {
			return nil, "", &ErrNoSuchReport{
				msg: fmt.Sprintf("no report named %s", name),
			}
		}
		return nil, "", err
	}

	rd, err := client.Open(ctx, key)
	if err != nil {
		return nil, key, err
	}
	defer rd.Close()

	lines, err := Read(rd)
	return lines, key, err
}
