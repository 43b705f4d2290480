// Package viper provides a package-specific instance of Viper to avoid
// the use of Viper's global instance, which can cause conflicts
package viper

import (
	"sync"

	spfviper "github.com/spf13/viper"
)

var (
	instance *spfviper.Viper
	mu       = sync.Mutex{}
)

// Instance provides the instance of Viper used by rovprep, or lazy-loads
// a new one if one has not been defined.
func Instance() *spfviper.Viper {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance = spfviper.New()
	}
	return instance
}

// Reset discards the current instance. The next call to Instance returns
// an empty Viper. Commands are rebuilt against a fresh instance in tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
}
