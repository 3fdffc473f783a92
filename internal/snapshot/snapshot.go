// Package snapshot captures the title and visible text of a web page with
// headless Chrome, used to fill in entries saved without content.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// MaxTextLength bounds the captured text, in runes.
const MaxTextLength = 50000

const userAgent = "unalog2-snapshot/1.0 (+https://github.com/dchud/unalog2)"

var ErrChromeMissing = errors.New("snapshot: chrome not installed")

// Page is what a capture yields.
type Page struct {
	Title string
	Text  string
}

// Chrome captures pages in a fresh headless browser per call.
type Chrome struct {
	timeout time.Duration
}

func NewChrome(timeout time.Duration) *Chrome {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Chrome{timeout: timeout}
}

// Available reports whether a Chrome or Chromium binary is on PATH.
func Available() bool {
	for _, name := range []string{"chromium-browser", "chromium", "google-chrome", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func (c *Chrome) Capture(ctx context.Context, url string) (Page, error) {
	if !Available() {
		return Page{}, ErrChromeMissing
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var title, text string
	err := chromedp.Run(taskCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(userAgent).Do(ctx)
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Title(&title),
		chromedp.Text("body", &text, chromedp.ByQuery),
	)
	if err != nil {
		return Page{}, fmt.Errorf("capture %s: %w", url, err)
	}
	return Page{Title: CleanText(title, 500), Text: CleanText(text, MaxTextLength)}, nil
}

// CleanText collapses runs of whitespace to single spaces and cuts the
// result to max runes.
func CleanText(s string, max int) string {
	var b strings.Builder
	space := false
	count := 0
	for _, r := range strings.TrimSpace(s) {
		if count >= max {
			break
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			if count+1 >= max {
				break
			}
			b.WriteByte(' ')
			count++
			space = false
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}
