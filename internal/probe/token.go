package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hamed0406/dpiprobe/internal/domain"
)

// Token is a single-use completion handle. The callback runs at most once no
// matter how many times Complete is called.
type Token struct {
	once sync.Once
	fn   func(domain.ProbeResult)
}

func NewToken(fn func(domain.ProbeResult)) *Token {
	return &Token{fn: fn}
}

// Complete delivers res and reports whether this call was the one that fired.
func (t *Token) Complete(res domain.ProbeResult) bool {
	fired := false
	t.once.Do(func() {
		fired = true
		if t.fn != nil {
			t.fn(res)
		}
	})
	return fired
}

// Execute runs c for inst and hands the result to tok. A panicking checker is
// turned into an error result so tok fires regardless.
func Execute(ctx context.Context, c Checker, inst domain.ProbeInstance, tok *Token) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			tok.Complete(domain.ProbeResult{
				Status:     domain.StatusError,
				DurationMS: time.Since(start).Seconds() * 1000,
				Detail:     fmt.Sprintf("%s: %v", domain.DetailPanic, p),
			})
		}
	}()
	tok.Complete(c.Check(ctx, inst))
}
