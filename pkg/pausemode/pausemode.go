package pausemode

import (
	"context"
	"fmt"

	"github.com/armlab/cr5-teleop/pkg/arm"
)

// PauseMode halts jogging and ignores all pad input.  The arm stays
// enabled so switching back to teleop is instant.
type PauseMode struct {
	Arm arm.Interface
}

func (t *PauseMode) Name() string {
	return "Pause mode"
}

func (t *PauseMode) Start(ctx context.Context) {
	if err := t.Arm.StopJog(); err != nil {
		fmt.Println("Failed to stop jog:", err)
	}
}

func (t *PauseMode) Stop() {
}
