// Package guard puts the process in test mode when imported by a test binary,
// so main-like code paths skip network side effects.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SALESDASH_TEST_MODE") == "" {
			_ = os.Setenv("SALESDASH_TEST_MODE", "1")
		}
		if os.Getenv("BACKEND_URL") == "" {
			_ = os.Setenv("BACKEND_URL", "http://127.0.0.1:0")
		}
	})
}
