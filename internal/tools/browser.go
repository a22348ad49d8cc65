package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const browserRenderTimeout = 30 * time.Second

// browserRenderer fetches pages through headless Chrome so client-rendered
// content becomes visible to the extractors. One browser launch per call,
// serialized so concurrent scrapes don't stack Chrome processes.
type browserRenderer struct {
	mu       sync.Mutex
	headless bool
}

func newBrowserRenderer(headless bool) *browserRenderer {
	return &browserRenderer{headless: headless}
}

func (r *browserRenderer) render(ctx context.Context, rawURL string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := launcher.New().Headless(r.headless)
	controlURL, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return "", fmt.Errorf("connect browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: rawURL})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if err := page.Timeout(browserRenderTimeout).WaitLoad(); err != nil {
		return "", fmt.Errorf("wait for page load: %w", err)
	}
	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}
