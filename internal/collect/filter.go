package collect

import (
	"context"
	"strings"
)

// NewExtensionFilter keeps files whose extension is listed when include is
// true and drops them when it is false. Matching ignores case; extensions may
// be given with or without the leading dot.
func NewExtensionFilter(ctx context.Context, in <-chan *Entry, extensions []string, include bool) <-chan *Entry {
	var ext []string
	for _, extension := range extensions {
		if extension == "" {
			continue
		}
		if !strings.HasPrefix(extension, ".") {
			extension = "." + extension
		}
		ext = append(ext, strings.ToLower(extension))
	}

	out := make(chan *Entry, 10)
	filter := extensionFilter{
		ctx:        ctx,
		in:         in,
		out:        out,
		extensions: ext,
		include:    include,
	}
	go filter.run()

	return out
}

type extensionFilter struct {
	ctx        context.Context
	in         <-chan *Entry
	out        chan<- *Entry
	extensions []string
	include    bool
}

func (filter *extensionFilter) run() {
	defer close(filter.out)

	for {
		select {
		case <-filter.ctx.Done():
			return
		case e, ok := <-filter.in:
			if !ok {
				return
			}
			if !filter.keep(e) {
				continue
			}
			select {
			case <-filter.ctx.Done():
				return
			case filter.out <- e:
			}
		}
	}
}

func (filter *extensionFilter) keep(e *Entry) bool {
	if e.Err != nil {
		return true
	}

	name := strings.ToLower(e.RelPath)
	match := false
	for _, ext := range filter.extensions {
		if strings.HasSuffix(name, ext) {
			match = true
			break
		}
	}
	return match == filter.include
}

// Drain collects a pipeline's output, splitting off the failed entries.
func Drain(ctx context.Context, in <-chan *Entry) (files, failed []*Entry, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return files, failed, err
		}
		select {
		case <-ctx.Done():
			return files, failed, ctx.Err()
		case e, ok := <-in:
			if !ok {
				return files, failed, nil
			}
			if e.Err != nil {
				failed = append(failed, e)
			} else {
				files = append(files, e)
			}
		}
	}
}
