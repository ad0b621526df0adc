package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-autolab/internal/ports"
)

// TimeoutMiddleware bounds every request by timeout. An expired request
// reports ports.ErrTimeout. A non-positive timeout disables the bound.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		if timeout <= 0 {
			return next
		}
		return &timeoutLLM{next: next, timeout: timeout}
	}
}

type timeoutLLM struct {
	next    CoreLLM
	timeout time.Duration
}

func (t *timeoutLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	response, in, out, err := t.next.DoRequest(ctx, prompt, opts)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ports.ErrTimeout) {
		err = fmt.Errorf("%w after %s: %w", ports.ErrTimeout, t.timeout, err)
	}
	return response, in, out, err
}

func (t *timeoutLLM) GetModel() string  { return t.next.GetModel() }
func (t *timeoutLLM) SetModel(m string) { t.next.SetModel(m) }
