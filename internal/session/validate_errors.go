package session

import (
	"errors"
	"fmt"
)

var errConflictingPolicy = errors.New("session: use_blacklist and use_whitelist are mutually exclusive")

func errInvalidDuration(field string) error {
	return fmt.Errorf("session: %s must be positive", field)
}

func errInvalidCount(field string) error {
	return fmt.Errorf("session: %s must be positive", field)
}
