package summary

import (
	"encoding/json"
	"math"
)

// MarshalJSON writes non-finite statistics (R-hat of a single chain, an
// undefined ESS) as null.
func (p ParameterSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name   string   `json:"name"`
		Mean   *float64 `json:"mean"`
		SD     *float64 `json:"sd"`
		Lower  *float64 `json:"q025"`
		Median *float64 `json:"q50"`
		Upper  *float64 `json:"q975"`
		Rhat   *float64 `json:"rhat"`
		ESS    *float64 `json:"ess"`
	}{p.Name, Finite(p.Mean), Finite(p.SD), Finite(p.Lower), Finite(p.Median), Finite(p.Upper), Finite(p.Rhat), Finite(p.ESS)})
}

// Finite returns a pointer to v, or nil when v is NaN or infinite.
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
