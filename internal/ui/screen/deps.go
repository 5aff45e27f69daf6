package screen

import (
	"fmt"
	"time"

	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/ui"
	"github.com/nregabot/nregabot/internal/ui/state"
)

// Deps are shared by every screen. All of it is only touched from the
// bubbletea update loop, except Services which is safe for concurrent use.
type Deps struct {
	Services ui.Services
	Board    *state.Board
	Keys     ui.KeyMap
}

func shortID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

func formatTally(t domain.Tally) string {
	return fmt.Sprintf("✓ %d  ✗ %d  ↷ %d", t.Success, t.Failed, t.Skipped)
}

func formatElapsed(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
