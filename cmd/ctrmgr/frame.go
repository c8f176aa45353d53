package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/studio1767/ctrmgr/internal/task"
	"github.com/studio1767/ctrmgr/internal/ui"
)

// frame is the foreground loop for one job. Each tick it renders the job's
// progress, answers the topmost prompt and checks for a finished worker.
type frame struct {
	a     *app
	job   *task.Job
	label string

	bar   *progressbar.ProgressBar
	limit int64

	lines      chan string
	asked      *ui.Prompt
	interrupts int
}

// run drives job until it finishes and returns its outcome.
func (a *app) run(job *task.Job, label string) task.Outcome {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, append([]os.Signal{os.Interrupt}, pauseSignals...)...)
	defer signal.Stop(sigs)

	f := &frame{a: a, job: job, label: label}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		f.bar = progressbar.NewOptions64(1,
			progressbar.OptionSetWriter(os.Stdout),
			progressbar.OptionSetDescription(label),
			progressbar.OptionShowBytes(job.Kind() != task.OpDelete),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	ticker := time.NewTicker(a.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if f.step() {
				return f.finish()
			}
		case <-job.Done():
			f.step()
			return f.finish()
		case sig := <-sigs:
			f.signal(sig, sigs)
		}
	}
}

func (f *frame) step() bool {
	p := f.job.Progress()
	f.render(p)
	f.servicePrompt()
	return p.Finished
}

func (f *frame) finish() task.Outcome {
	if f.bar != nil {
		_ = f.bar.Finish()
	}
	return f.job.Wait()
}

// render shows the current item's bytes while one is streaming and the item
// count otherwise.
func (f *frame) render(p task.Progress) {
	if f.bar == nil {
		return
	}
	limit, cur := int64(p.Total), int64(p.Processed)
	if p.CurrTotal > 0 {
		limit, cur = int64(p.CurrTotal), int64(p.CurrProcessed)
	}
	if limit <= 0 {
		limit = 1
	}
	if limit != f.limit {
		f.bar.ChangeMax64(limit)
		f.limit = limit
	}

	item := p.Processed + 1
	if item > p.Total {
		item = p.Total
	}
	desc := fmt.Sprintf("%s %d/%d", f.label, item, p.Total)
	if f.a.pause.Paused() {
		desc += " (paused)"
	}
	f.bar.Describe(desc)
	_ = f.bar.Set64(cur)
}

func (f *frame) servicePrompt() {
	top := f.a.stack.Top()
	if top == nil {
		f.asked = nil
		return
	}
	if top != f.asked {
		f.asked = top
		if f.bar != nil {
			_ = f.bar.Clear()
		}
		printPrompt(top)
		f.startReader()
	}

	select {
	case line, ok := <-f.lines:
		if !ok {
			f.a.stack.Dismiss(top)
			return
		}
		resp, valid := parseAnswer(top, line)
		if !valid {
			fmt.Print("? ")
			return
		}
		f.a.stack.Respond(top, resp)
	default:
	}
}

// startReader feeds stdin lines to the loop. It is only started once a
// prompt needs an answer and lives until stdin closes.
func (f *frame) startReader() {
	if f.lines != nil {
		return
	}
	f.lines = make(chan string)
	go func() {
		defer close(f.lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			f.lines <- scanner.Text()
		}
	}()
}

func printPrompt(p *ui.Prompt) {
	fmt.Println()
	fmt.Println(p.Message)
	if p.Kind == ui.KindConfirm {
		fmt.Print("[y/n]: ")
		return
	}
	for i, opt := range p.Options {
		fmt.Printf("  %d. %s\n", i+1, opt)
	}
	fmt.Printf("Choose [1-%d]: ", len(p.Options))
}

// parseAnswer maps a typed line to a prompt response.
func parseAnswer(p *ui.Prompt, line string) (int, bool) {
	line = strings.ToLower(strings.TrimSpace(line))
	if p.Kind == ui.KindConfirm {
		switch line {
		case "y", "yes":
			return 0, true
		case "n", "no":
			return 1, true
		}
		return 0, false
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(p.Options) {
		return 0, false
	}
	return n - 1, true
}

// signal handles an interrupt as the cancel button; a second one quits.
func (f *frame) signal(sig os.Signal, sigs chan<- os.Signal) {
	if handlePause(sig, f.a.pause, sigs) {
		return
	}
	f.interrupts++
	if f.interrupts == 1 {
		fmt.Fprintln(os.Stderr, "\ncancelling, interrupt again to quit")
		f.job.Cancel()
		return
	}
	f.a.quit.Signal()
}

func printOutcome(title string, o task.Outcome) {
	fmt.Printf("%s Summary\n", title)
	fmt.Printf("      items: %s\n", humanize.Comma(int64(o.Total)))
	fmt.Printf("  processed: %s\n", humanize.Comma(int64(o.Processed)))
	fmt.Printf("     failed: %s\n", humanize.Comma(int64(len(o.Failures))))
	if o.Cancelled {
		fmt.Println("  cancelled: yes")
	}
	for _, failure := range o.Failures {
		fmt.Printf("- failed: %v\n", failure)
	}
}

// confirm asks a yes/no question before a job starts.
func confirm(message string) bool {
	if assumeYes {
		return true
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	p := ui.NewConfirm(message)
	reader := bufio.NewReader(os.Stdin)
	for {
		printPrompt(p)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		if resp, ok := parseAnswer(p, line); ok {
			return resp == 0
		}
	}
}
