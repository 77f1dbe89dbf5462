// Package guard forces test mode on for any test binary that imports it,
// so application entry points skip runtime side effects.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("TELEVITA_TEST_MODE") == "" {
			_ = os.Setenv("TELEVITA_TEST_MODE", "1")
		}
	})
}
