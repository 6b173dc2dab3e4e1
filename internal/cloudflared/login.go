package cloudflared

import (
	"strings"
	"sync"
	"time"

	"github.com/IYouKnow/TunnelUI/internal/cliparse"
	"github.com/IYouKnow/TunnelUI/internal/procrun"
)

// ExitFunc is called once a login process that produced a URL exits.
type ExitFunc func(res procrun.Result, err error)

// Login starts `cloudflared tunnel login` and waits for it to print the
// authorization URL. The process keeps running after the URL is returned
// so the operator can finish in the browser; onExit fires when it ends.
// Without a URL before timeout the process is killed.
func (c *CLI) Login(timeout time.Duration, onExit ExitFunc) (url, output string, err error) {
	var (
		mu    sync.Mutex
		buf   strings.Builder
		found = make(chan string, 1)
		once  sync.Once
	)
	h, err := c.runner.Start(procrun.Cmd{Name: c.Bin, Args: []string{"tunnel", "login"}}, func(_ procrun.Stream, chunk string) {
		mu.Lock()
		buf.WriteString(chunk)
		u, ok := cliparse.LoginURL(buf.String())
		mu.Unlock()
		if ok {
			once.Do(func() { found <- u })
		}
	})
	if err != nil {
		return "", "", err
	}

	snapshot := func() string {
		mu.Lock()
		defer mu.Unlock()
		return buf.String()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case u := <-found:
		go func() {
			res, werr := h.Wait()
			if onExit != nil {
				onExit(res, werr)
			}
		}()
		return u, snapshot(), nil
	case <-h.Done():
		select {
		case u := <-found:
			res, werr := h.Wait()
			if onExit != nil {
				go onExit(res, werr)
			}
			return u, snapshot(), nil
		default:
		}
		_, werr := h.Wait()
		if werr != nil {
			return "", h.Output(), werr
		}
		return "", h.Output(), &OutputError{Err: ErrLoginExited, Output: h.Output()}
	case <-timer.C:
		h.Kill()
		return "", snapshot(), &OutputError{Err: ErrLoginTimeout, Output: snapshot()}
	}
}
