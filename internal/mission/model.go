// Package mission is a small spacecraft model built on the simulation
// kernel. It is the model the CLI runs and the one harness scenarios are
// written against.
//
// The spacecraft has a battery charged by its arrays, an onboard data store
// filled by observations and drained by downlinks, an instrument with a
// power mode, an attitude, a downlink counter and a heater temperature.
package mission

import (
	"github.com/roach88/orbit/internal/cell"
	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
	"github.com/roach88/orbit/internal/resource"
)

const (
	Name    = "orbit-demo"
	Version = "1.0.0"
)

// Initial conditions.
const (
	InitialCharge      = 36000.0 // J
	SolarInput         = 4.0     // W
	InitialTemperature = 20.0    // C
)

// Power draw by activity, in watts.
const (
	StandbyDraw  = 2.0
	ObserveDraw  = 8.0
	SlewDraw     = 4.0
	TransmitDraw = 6.0
)

// Instrument modes.
const (
	ModeOff     = "off"
	ModeStandby = "standby"
	ModeOn      = "on"
)

// Attitudes.
const (
	PointSun    = "sun"
	PointNadir  = "nadir"
	PointTarget = "target"
)

// Cell references. Cells themselves are created per model by New.
var (
	Battery     = cell.RefOf[cell.Volume, cell.Delta]("battery")
	Data        = cell.RefOf[cell.Volume, cell.Delta]("data")
	Instrument  = cell.RefOf[string, cell.Set[string]]("instrument")
	Attitude    = cell.RefOf[string, cell.Set[string]]("attitude")
	Downlinks   = cell.RefOf[int64, cell.Add]("downlinks")
	Temperature = cell.RefOf[float64, cell.Affine]("temperature")
)

var modeDraw = map[string]float64{
	ModeOff:     0,
	ModeStandby: StandbyDraw,
	ModeOn:      ObserveDraw,
}

// New builds the spacecraft model.
func New() *engine.Model {
	cells := []cell.State{
		cell.NewAccumulator(Battery.ID(), cell.Volume{Amount: InitialCharge, Rate: SolarInput}),
		cell.NewAccumulator(Data.ID(), cell.Volume{}),
		cell.NewRegister(Instrument.ID(), ModeOff),
		cell.NewRegister(Attitude.ID(), PointSun),
		cell.NewCounter(Downlinks.ID(), 0),
		cell.NewArith(Temperature.ID(), InitialTemperature, cell.Auto),
	}

	resources := resource.NewRegistry()
	resources.MustRegister("battery", unit(ir.RealSchema(), "J"), resource.VolumeOf(Battery))
	resources.MustRegister("data", unit(ir.RealSchema(), "Mb"), resource.VolumeOf(Data))
	resources.MustRegister("instrument", ir.VariantOf(ModeOff, ModeStandby, ModeOn), resource.DiscreteOf(Instrument))
	resources.MustRegister("attitude", ir.VariantOf(PointSun, PointNadir, PointTarget), resource.DiscreteOf(Attitude))
	resources.MustRegister("downlinks", ir.IntSchema(), resource.DiscreteOf(Downlinks))
	resources.MustRegister("temperature", unit(ir.RealSchema(), "C"), resource.DiscreteOf(Temperature))

	activities := engine.NewRegistry()
	activities.MustRegister(Activities()...)

	return &engine.Model{
		Name:       Name,
		Version:    Version,
		Cells:      cells,
		Resources:  resources,
		Activities: activities,
	}
}

func unit(s ir.Schema, u string) ir.Schema {
	return s.WithMetadata(ir.Map{"unit": ir.String(u)})
}
