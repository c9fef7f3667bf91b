package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry is a no-op without a DSN. The returned func flushes pending
// events and belongs in a defer in main.
func InitSentry(dsn, env, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     release,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

func CaptureErr(err error) {
	if err != nil {
		sentry.CaptureException(err)
	}
}

// CaptureSyncFailure tags the event with the sync type before sending.
func CaptureSyncFailure(syncType string, err error) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("sync_type", syncType)
		sentry.CaptureException(err)
	})
}
