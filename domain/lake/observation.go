package lake

// Column names of the prepared survey dataset.
const (
	ColChl       = "chl"
	ColTP        = "tp"
	ColTN        = "tn"
	ColAvgTemp   = "avg_temp"
	ColSiteDepth = "INDEX_SITE_DEPTH"
	ColLogEutro  = "log_eutro"
	ColLake      = "specific_lake_bin"
	ColEutroBin  = "eutro_bin"
	ColDepthBin  = "depth_bin"
	ColTempBin   = "temp_bin"
	ColSiteID    = "SITE_ID"
)

// RequiredColumns must be present in every input file.
var RequiredColumns = []string{
	ColChl, ColTP, ColTN, ColAvgTemp, ColSiteDepth, ColLogEutro,
	ColLake, ColEutroBin, ColDepthBin, ColTempBin, ColSiteID,
}

// BinColumns are the categorical columns a coefficient may be estimated per value of.
var BinColumns = []string{ColEutroBin, ColDepthBin, ColTempBin}

// Observation is one lake-visit record.
type Observation struct {
	Row      int
	LakeID   string
	SiteID   string
	Chl      float64
	TP       float64
	TN       float64
	AvgTemp  float64
	Depth    float64
	LogEutro float64
	EutroBin string
	DepthBin string
	TempBin  string

	// Numeric holds every other column that parsed as a number (e.g. survey year).
	Numeric map[string]float64
	// Raw is the source record, in header order.
	Raw []string
}

// Value returns the numeric value of a column, including the aliases depth, temp and eutro.
func (o Observation) Value(column string) (float64, bool) {
	switch column {
	case ColChl:
		return o.Chl, true
	case ColTP:
		return o.TP, true
	case ColTN:
		return o.TN, true
	case ColAvgTemp, "temp":
		return o.AvgTemp, true
	case ColSiteDepth, "depth":
		return o.Depth, true
	case ColLogEutro, "eutro":
		return o.LogEutro, true
	}
	v, ok := o.Numeric[column]
	return v, ok
}

// Bin returns the value of a categorical bin column.
func (o Observation) Bin(column string) (string, bool) {
	switch column {
	case ColEutroBin:
		return o.EutroBin, true
	case ColDepthBin:
		return o.DepthBin, true
	case ColTempBin:
		return o.TempBin, true
	case ColLake:
		return o.LakeID, true
	case ColSiteID:
		return o.SiteID, true
	}
	return "", false
}

// Env is the variable environment used by covariate expressions.
func (o Observation) Env() map[string]any {
	env := make(map[string]any, len(o.Numeric)+9)
	for k, v := range o.Numeric {
		env[k] = v
	}
	env[ColChl] = o.Chl
	env[ColTP] = o.TP
	env[ColTN] = o.TN
	env[ColAvgTemp] = o.AvgTemp
	env[ColSiteDepth] = o.Depth
	env[ColLogEutro] = o.LogEutro
	env["temp"] = o.AvgTemp
	env["depth"] = o.Depth
	env["eutro"] = o.LogEutro
	return env
}
