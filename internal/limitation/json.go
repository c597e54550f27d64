package limitation

import (
	"encoding/json"

	"bnla/internal/summary"
)

// MarshalJSON writes lake attributes missing from the survey as null.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		LakeID            string   `json:"lake_id"`
		Probability       float64  `json:"p_limitation"`
		MeanCriticalRatio *float64 `json:"mean_critical_ratio"`
		MeanNPRatio       *float64 `json:"mean_np_ratio"`
		Depth             *float64 `json:"depth"`
		Eutro             *float64 `json:"eutro"`
	}{r.LakeID, r.Probability, summary.Finite(r.MeanCriticalRatio), summary.Finite(r.MeanNPRatio), summary.Finite(r.Depth), summary.Finite(r.Eutro)})
}
