package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Step is one action in a resilience Scenario: disable a venue or raise a
// chain's confirmation threshold, optionally followed by a pause. A step
// that names neither action fails. The orchestration loop itself
// ("which hooks fire when") is left to the operator driving a Scenario
// rather than baked into the Controller (spec.md §1 names the sub-mode
// but leaves the drive loop out of core scope).
type Step struct {
	Name                 string
	DisableVenueID       string        // non-empty to call DisableVenue
	RaiseConfirmationID  string        // non-empty to call RaiseConfirmationThreshold
	RaiseConfirmationN   uint64
	PauseAfter           time.Duration
}

// Scenario is an ordered list of Steps, grounded on the teacher's
// selftest.Runner shape (a list of checks run in sequence with a result
// collected per step) generalized from validation checks to fault
// injection actions.
type Scenario struct {
	Name  string
	Steps []Step
}

// StepResult records the outcome of one Step.
type StepResult struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Result is the aggregate outcome of Run.
type Result struct {
	ScenarioName string
	Steps        []StepResult
	OverallOK    bool
}

// Run drives the scenario against controller, in order, emitting a
// RESILIENCE_ACTION audit record per step via the Controller's own hooks.
func (s Scenario) Run(ctx context.Context, controller *Controller) Result {
	result := Result{ScenarioName: s.Name, OverallOK: true}

	for _, step := range s.Steps {
		start := time.Now()
		var err error

		switch {
		case step.DisableVenueID != "":
			err = controller.DisableVenue(ctx, step.DisableVenueID)
		case step.RaiseConfirmationID != "":
			err = controller.RaiseConfirmationThreshold(ctx, step.RaiseConfirmationID, step.RaiseConfirmationN)
		default:
			err = fmt.Errorf("resilience: step %q names no action", step.Name)
		}

		sr := StepResult{Name: step.Name, Err: err, Duration: time.Since(start)}
		result.Steps = append(result.Steps, sr)
		if err != nil {
			result.OverallOK = false
			log.Warn().Str("scenario", s.Name).Str("step", step.Name).Err(err).Msg("resilience step failed")
		} else {
			log.Info().Str("scenario", s.Name).Str("step", step.Name).Dur("duration", sr.Duration).Msg("resilience step completed")
		}

		if step.PauseAfter > 0 {
			select {
			case <-ctx.Done():
				return result
			case <-time.After(step.PauseAfter):
			}
		}
	}

	return result
}
