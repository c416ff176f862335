package logx

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// telegramWriter forwards log lines at or above the configured min level to
// the Telegram sink queue. Writes never block the logging call site; when the
// queue is full the line is dropped.
type telegramWriter struct {
	svc *Service
}

func (w *telegramWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *telegramWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	w.svc.mu.Lock()
	min := w.svc.minLevel
	target := w.svc.chatID
	sender := w.svc.sender
	w.svc.mu.Unlock()

	if level < min || target == 0 || sender == nil {
		return len(p), nil
	}

	line := strings.TrimSpace(string(p))
	if line == "" {
		return len(p), nil
	}
	select {
	case w.svc.tgQueue <- line:
	default:
		// queue full; drop rather than stall the logger
	}
	return len(p), nil
}

func (s *Service) telegramWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-s.tgQueue:
			s.mu.Lock()
			lim := s.limiter
			target := s.chatID
			sender := s.sender
			s.mu.Unlock()

			if target == 0 || sender == nil {
				continue
			}
			if lim != nil {
				if err := lim.Wait(ctx); err != nil {
					return
				}
			}
			cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_ = sender(cctx, target, line)
			cancel()
		}
	}
}
