package app

import (
	"context"
	"time"
)

// DoEvery calls f on every tick of d until ctx is done.
func DoEvery(ctx context.Context, d time.Duration, f func(time.Time)) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case x := <-t.C:
			f(x)
		}
	}
}

func CurrentMessageTime() string {
	return MessageTime(time.Now())
}

func MessageTime(t time.Time) string {
	return t.Format("02.01.2006 15:04")
}

func RemoveTrailingSlash(s string) string {
	if len(s) > 0 && s[len(s)-1] == '/' {
		return s[:len(s)-1]
	}
	return s
}
