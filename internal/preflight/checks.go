package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"curator/internal/backend"
	"curator/internal/generation"
)

// HealthChecker is satisfied by *backend.Client.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// CheckBackend verifies that the backend answers GET /health.
// It uses a 5-second timeout and a single attempt.
func CheckBackend(ctx context.Context, baseURL string, client HealthChecker) Result {
	const name = "Backend"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Health(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", baseURL, summarizeBackendError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", baseURL)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckRunLock reports whether another process is running a generation job.
// A held lock is reported but not treated as a failure.
func CheckRunLock(path string) Result {
	const name = "Generation lock"

	lock := generation.NewRunLock(path)
	ok, err := lock.TryAcquire()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if !ok {
		return Result{Name: name, Passed: true, Warning: true, Detail: fmt.Sprintf("%s (held by another process)", path)}
	}
	_ = lock.Release()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (free)", path)}
}

func summarizeBackendError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out"
	}
	if code := backend.StatusCode(err); code != 0 {
		return fmt.Sprintf("health check failed (%d)", code)
	}
	if backend.IsNetwork(err) {
		return "unreachable"
	}
	return err.Error()
}
