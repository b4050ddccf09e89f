package process

import (
	"fmt"
	"time"
)

func errBeforeStart(d time.Duration, exitErr error) error {
	if exitErr != nil {
		return fmt.Errorf("process exited before start duration %s: %w", d, exitErr)
	}
	return fmt.Errorf("process exited before start duration %s", d)
}
