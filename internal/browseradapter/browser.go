// internal/browseradapter/browser.go
// Package browseradapter drives a Chrome instance over CDP as the agent's
// screen. It implements both the capture and the execute port of the task
// loop: screenshots come from Page.captureScreenshot, device actions are
// dispatched as raw input events.
package browseradapter

import (
	"context"
	"encoding/base64"
	"fmt"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/quantumagi/agi-sdk-go/internal/action"
	"github.com/quantumagi/agi-sdk-go/internal/agent"
	"github.com/quantumagi/agi-sdk-go/internal/config"
)

// Browser owns a dedicated Chrome tab and exposes it through the agent's
// capture and execute ports.
type Browser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	cfg    config.BrowserConfig
	logger *zap.Logger
}

// New launches a browser according to the config and navigates to the start
// URL when one is set. Close must be called to tear the browser down.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	b := &Browser{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		cfg:         cfg,
		logger:      logger,
	}

	// Force the browser to actually start before the loop needs it.
	startURL := cfg.StartURL
	if startURL == "" {
		startURL = "about:blank"
	}
	if err := chromedp.Run(tabCtx, chromedp.Navigate(startURL)); err != nil {
		b.Close()
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	logger.Debug("Browser ready", zap.String("start_url", startURL), zap.Bool("headless", cfg.Headless))
	return b, nil
}

// Close tears down the tab and the browser process.
func (b *Browser) Close() {
	b.tabCancel()
	b.allocCancel()
}

// Capture takes a screenshot of the current viewport.
func (b *Browser) Capture(ctx context.Context) (agent.EncodedImage, error) {
	runCtx, cancel := b.actionContext(ctx)
	defer cancel()

	var buf []byte
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			Do(c)
		return err
	}))
	if err != nil {
		return agent.EncodedImage{}, fmt.Errorf("capturing screenshot: %w", err)
	}
	return agent.EncodedImage{
		Base64: base64.StdEncoding.EncodeToString(buf),
		Width:  b.cfg.ViewportWidth,
		Height: b.cfg.ViewportHeight,
		Format: "png",
	}, nil
}

// Execute dispatches one device action. Control actions never belong here;
// the loop intercepts them, so receiving one is a programming error.
func (b *Browser) Execute(ctx context.Context, act action.Action) error {
	if act.Type.Control() {
		return fmt.Errorf("control action %q cannot be executed against the browser", act.Type)
	}

	runCtx, cancel := b.actionContext(ctx)
	defer cancel()

	switch act.Type {
	case action.TypeClick:
		return b.click(runCtx, act.X, act.Y, mouseButton(act.Button), 1)
	case action.TypeDoubleClick:
		return b.click(runCtx, act.X, act.Y, input.Left, 2)
	case action.TypeRightClick:
		return b.click(runCtx, act.X, act.Y, input.Right, 1)
	case action.TypeTripleClick:
		return b.click(runCtx, act.X, act.Y, input.Left, 3)
	case action.TypeHover:
		return b.moveMouse(runCtx, act.X, act.Y)
	case action.TypeType:
		return b.typeText(runCtx, act.Text)
	case action.TypeKey:
		return b.pressKey(runCtx, act.Key)
	case action.TypeScroll:
		return b.scroll(runCtx, act.X, act.Y, act.Direction, act.Amount)
	case action.TypeDrag:
		return b.drag(runCtx, act.StartX, act.StartY, act.EndX, act.EndY)
	case action.TypeWait:
		return b.wait(runCtx, act.Duration)
	default:
		return fmt.Errorf("action %q is not executable in a browser", act.Type)
	}
}

func (b *Browser) actionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	// Bound every CDP interaction and honor the caller's cancellation even
	// though commands run on the tab context.
	timeout := b.cfg.ActionTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	runCtx, cancel := context.WithTimeout(b.tabCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() { stop(); cancel() }
}

func (b *Browser) click(ctx context.Context, x, y int, button input.MouseButton, clicks int) error {
	fx, fy := float64(x), float64(y)
	return chromedp.Run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		if err := dispatchMove(c, fx, fy); err != nil {
			return err
		}
		for i := 1; i <= clicks; i++ {
			press := input.DispatchMouseEvent(input.MousePressed, fx, fy).
				WithButton(button).
				WithButtons(buttonsMask(button)).
				WithClickCount(int64(i))
			if err := press.Do(c); err != nil {
				return err
			}
			release := input.DispatchMouseEvent(input.MouseReleased, fx, fy).
				WithButton(button).
				WithClickCount(int64(i))
			if err := release.Do(c); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (b *Browser) moveMouse(ctx context.Context, x, y int) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return dispatchMove(c, float64(x), float64(y))
	}))
}

func (b *Browser) typeText(ctx context.Context, text string) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return input.InsertText(text).Do(c)
	}))
}

// namedKeys maps model-facing key names onto the CDP key runes understood by
// chromedp's keyboard layer.
var namedKeys = map[string]string{
	"enter":     kb.Enter,
	"return":    kb.Enter,
	"tab":       kb.Tab,
	"backspace": kb.Backspace,
	"delete":    kb.Delete,
	"escape":    kb.Escape,
	"esc":       kb.Escape,
	"space":     " ",
	"up":        kb.ArrowUp,
	"down":      kb.ArrowDown,
	"left":      kb.ArrowLeft,
	"right":     kb.ArrowRight,
	"home":      kb.Home,
	"end":       kb.End,
	"pageup":    kb.PageUp,
	"pagedown":  kb.PageDown,
}

// pressKey dispatches a key or a modifier combo like "ctrl+a". On non-mac
// hosts "cmd" is treated as "ctrl" so model output written for macOS still
// works.
func (b *Browser) pressKey(ctx context.Context, key string) error {
	keys, modifiers, err := parseKeyCombo(key)
	if err != nil {
		return err
	}
	return chromedp.Run(ctx, chromedp.KeyEvent(keys, chromedp.KeyModifiers(modifiers...)))
}

// parseKeyCombo splits "ctrl+shift+a" style input into the CDP key runes and
// modifier set.
func parseKeyCombo(key string) (string, []input.Modifier, error) {
	parts := strings.Split(key, "+")
	var modifiers []input.Modifier
	base := parts[len(parts)-1]
	for _, part := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "ctrl", "control":
			modifiers = append(modifiers, input.ModifierCtrl)
		case "alt", "option":
			modifiers = append(modifiers, input.ModifierAlt)
		case "shift":
			modifiers = append(modifiers, input.ModifierShift)
		case "cmd", "meta", "super", "win":
			if runtime.GOOS == "darwin" {
				modifiers = append(modifiers, input.ModifierMeta)
			} else {
				modifiers = append(modifiers, input.ModifierCtrl)
			}
		default:
			return "", nil, fmt.Errorf("unknown key modifier %q", part)
		}
	}

	keys, ok := namedKeys[strings.ToLower(strings.TrimSpace(base))]
	if !ok {
		if utf8.RuneCountInString(base) != 1 {
			return "", nil, fmt.Errorf("unknown key %q", base)
		}
		keys = base
	}
	return keys, modifiers, nil
}

// scroll moves the pointer to (x, y) and dispatches a wheel event there, so
// the element under the point receives the scroll rather than the window.
func (b *Browser) scroll(ctx context.Context, x, y int, direction string, amount int) error {
	dx, dy, err := scrollDeltas(direction, amount)
	if err != nil {
		return err
	}
	fx, fy := float64(x), float64(y)
	return chromedp.Run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		if err := dispatchMove(c, fx, fy); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseWheel, fx, fy).
			WithDeltaX(dx).
			WithDeltaY(dy).
			Do(c)
	}))
}

// scrollDeltas translates a direction plus step count into wheel deltas.
// Positive deltaY scrolls the content down, matching browser wheel semantics.
func scrollDeltas(direction string, amount int) (dx, dy float64, err error) {
	const stepPixels = 120
	delta := float64(amount * stepPixels)
	switch direction {
	case "up":
		return 0, -delta, nil
	case "down":
		return 0, delta, nil
	case "left":
		return -delta, 0, nil
	case "right":
		return delta, 0, nil
	default:
		return 0, 0, fmt.Errorf("unknown scroll direction %q", direction)
	}
}

func (b *Browser) drag(ctx context.Context, startX, startY, endX, endY int) error {
	sx, sy := float64(startX), float64(startY)
	ex, ey := float64(endX), float64(endY)
	return chromedp.Run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		if err := dispatchMove(c, sx, sy); err != nil {
			return err
		}
		press := input.DispatchMouseEvent(input.MousePressed, sx, sy).
			WithButton(input.Left).
			WithButtons(1).
			WithClickCount(1)
		if err := press.Do(c); err != nil {
			return err
		}
		// Intermediate moves so drop targets see a real drag.
		const steps = 10
		for i := 1; i <= steps; i++ {
			mx := sx + (ex-sx)*float64(i)/steps
			my := sy + (ey-sy)*float64(i)/steps
			move := input.DispatchMouseEvent(input.MouseMoved, mx, my).
				WithButton(input.Left).
				WithButtons(1)
			if err := move.Do(c); err != nil {
				return err
			}
		}
		release := input.DispatchMouseEvent(input.MouseReleased, ex, ey).
			WithButton(input.Left).
			WithClickCount(1)
		return release.Do(c)
	}))
}

func (b *Browser) wait(ctx context.Context, seconds float64) error {
	d := time.Duration(seconds * float64(time.Second))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func dispatchMove(ctx context.Context, x, y float64) error {
	return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
}

func mouseButton(name string) input.MouseButton {
	switch name {
	case "right":
		return input.Right
	case "middle":
		return input.Middle
	default:
		return input.Left
	}
}

func buttonsMask(button input.MouseButton) int64 {
	switch button {
	case input.Right:
		return 2
	case input.Middle:
		return 4
	default:
		return 1
	}
}
