package series

import "time"

// PowerRow is one 5-minute power observation within a day bucket.
// Values are in watts. The derived load channel is not stored; it is
// recomputed from the reported channels at write time.
type PowerRow struct {
	Timestamp         time.Time
	SolarPower        float64
	BatteryPower      float64
	GridPower         float64
	GridServicesPower float64
	GeneratorPower    float64
}

// LoadPower returns the derived load channel: the arithmetic sum of the
// independently reported channels. It is never trusted from the API.
func (r PowerRow) LoadPower() float64 {
	return r.SolarPower + r.BatteryPower + r.GridPower + r.GridServicesPower + r.GeneratorPower
}

// EnergyRow is one per-interval energy observation. Values are keyed by
// channel name; channels absent from the API response are simply missing
// and serialize as zero.
type EnergyRow struct {
	Timestamp time.Time
	Values    map[string]float64
}
