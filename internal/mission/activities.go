package mission

import (
	"fmt"
	"math"

	"github.com/roach88/orbit/internal/cell"
	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
)

// SlewTime is how long Observe spends pointing at its target.
const SlewTime = 30 * duration.Second

// Activities returns every activity type of the model in registration
// order.
func Activities() []engine.ActivityType {
	return []engine.ActivityType{
		engine.Activity("power_on", "bring the instrument to standby or on after a warmup", powerOn),
		engine.Activity("slew", "turn the spacecraft to a new attitude", slew),
		engine.Activity("observe", "point at a target and record data", observe),
		engine.Activity("downlink", "transmit stored data to the ground", downlink),
		engine.Activity("heat", "raise the heater temperature", heat),
		engine.Activity("cool", "scale the heater temperature down", cool),
		engine.Activity("sequence", "run activities one after another", sequence),
	}
}

type PowerOnParams struct {
	Mode   string            `json:"mode" validate:"required,oneof=standby on"`
	Warmup duration.Duration `json:"warmup" validate:"gte=0"`
}

func powerOn(tc *engine.TaskContext, p *PowerOnParams) error {
	if err := setMode(tc, ModeStandby); err != nil {
		return err
	}
	tc.Delay(p.Warmup)
	return setMode(tc, p.Mode)
}

type SlewParams struct {
	Attitude string            `json:"attitude" validate:"required,oneof=sun nadir target"`
	Duration duration.Duration `json:"duration" validate:"gte=0"`
}

func slew(tc *engine.TaskContext, p *SlewParams) error {
	if err := engine.Emit(tc, Battery, cell.AddRate(-SlewDraw)); err != nil {
		return err
	}
	tc.Delay(p.Duration)
	if err := engine.Emit(tc, Attitude, cell.SetTo(p.Attitude)); err != nil {
		return err
	}
	return engine.Emit(tc, Battery, cell.AddRate(SlewDraw))
}

type ObserveParams struct {
	Target   string            `json:"target" validate:"required"`
	Duration duration.Duration `json:"duration" validate:"gt=0"`
	Rate     float64           `json:"rate" validate:"gt=0"`
}

func observe(tc *engine.TaskContext, p *ObserveParams) error {
	err := tc.CallActivity("slew", ir.Map{
		"attitude": ir.String(PointTarget),
		"duration": ir.Int(SlewTime),
	})
	if err != nil {
		return fmt.Errorf("slew to %s: %w", p.Target, err)
	}

	if err := setMode(tc, ModeOn); err != nil {
		return err
	}
	engine.MustEmit(tc, Data, cell.AddRate(p.Rate))
	tc.Logger().Info("observation started", "target", p.Target, "rate", p.Rate)

	tc.Delay(p.Duration)

	engine.MustEmit(tc, Data, cell.AddRate(-p.Rate))
	engine.MustEmit(tc, Attitude, cell.SetTo(PointNadir))
	return setMode(tc, ModeStandby)
}

type DownlinkParams struct {
	Duration duration.Duration `json:"duration" validate:"gt=0"`
	Rate     float64           `json:"rate" validate:"gt=0"`
}

// downlink transmits for Duration or until the store is empty, whichever
// comes first. An empty store still counts as a pass.
func downlink(tc *engine.TaskContext, p *DownlinkParams) error {
	stored, err := engine.Get(tc, Data)
	if err != nil {
		return err
	}
	length := p.Duration
	if stored.Rate >= 0 {
		length = duration.Less(length, duration.Floor(math.Max(stored.Amount, 0)/p.Rate))
	}

	engine.MustEmit(tc, Downlinks, cell.Add(1))
	if length == 0 {
		tc.Logger().Warn("downlink with nothing stored")
		return nil
	}

	engine.MustEmit(tc, Data, cell.AddRate(-p.Rate))
	engine.MustEmit(tc, Battery, cell.AddRate(-TransmitDraw))
	tc.Delay(length)
	engine.MustEmit(tc, Data, cell.AddRate(p.Rate))
	engine.MustEmit(tc, Battery, cell.AddRate(TransmitDraw))
	return nil
}

type HeatParams struct {
	Degrees float64 `json:"degrees" validate:"required"`
}

func heat(tc *engine.TaskContext, p *HeatParams) error {
	return engine.Emit(tc, Temperature, cell.Increment(p.Degrees))
}

type CoolParams struct {
	Factor float64 `json:"factor" validate:"gt=0,lte=1"`
}

func cool(tc *engine.TaskContext, p *CoolParams) error {
	return engine.Emit(tc, Temperature, cell.Multiply(p.Factor))
}

// Step is one entry of a sequence: wait After, then run Type with Args to
// completion.
type Step struct {
	After duration.Duration `json:"after" validate:"gte=0"`
	Type  string            `json:"type" validate:"required"`
	Args  ir.Map            `json:"args"`
}

type SequenceParams struct {
	Steps []Step `json:"steps" validate:"required,min=1,dive"`
}

func sequence(tc *engine.TaskContext, p *SequenceParams) error {
	for i, step := range p.Steps {
		tc.Delay(step.After)
		if err := tc.CallActivity(step.Type, step.Args); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Type, err)
		}
	}
	return nil
}

// setMode switches the instrument and moves the battery draw from the old
// mode to the new one.
func setMode(tc *engine.TaskContext, mode string) error {
	current, err := engine.Get(tc, Instrument)
	if err != nil {
		return err
	}
	if current == mode {
		return nil
	}
	if err := engine.Emit(tc, Instrument, cell.SetTo(mode)); err != nil {
		return err
	}
	return engine.Emit(tc, Battery, cell.AddRate(modeDraw[current]-modeDraw[mode]))
}
