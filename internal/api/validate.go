package api

import (
	"fmt"

	"fieldroute/internal/model"
)

const maxStopCap = 25

func validateInstructions(instr *model.RouteInstructions) error {
	if instr.MaxStops < 0 {
		return fmt.Errorf("maxStops must be >= 0")
	}
	if instr.MaxStops == 0 || instr.MaxStops > maxStopCap {
		instr.MaxStops = maxStopCap
	}
	switch instr.EndPolicy {
	case "", model.EndReturnToStart, model.EndLastStop, model.EndExplicit:
	default:
		return fmt.Errorf("invalid endPolicy: %s", instr.EndPolicy)
	}
	if instr.EndPolicy == model.EndExplicit && instr.EndAddress == "" {
		return fmt.Errorf("endPolicy %q requires endAddress", model.EndExplicit)
	}
	return nil
}
