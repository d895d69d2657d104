package layout

// MapTime linearly maps ts from [minTime, maxTime] onto [minSpace, maxSpace].
// A degenerate time range maps everything to minSpace.
func MapTime(ts, minTime, maxTime int64, minSpace, maxSpace float64) float64 {
	if maxTime == minTime {
		return minSpace
	}
	frac := float64(ts-minTime) / float64(maxTime-minTime)
	return minSpace + frac*(maxSpace-minSpace)
}

// Axis binds a time range to a spatial range.
type Axis struct {
	MinTime, MaxTime   int64
	MinSpace, MaxSpace float64
}

// Map places ts on the axis.
func (a Axis) Map(ts int64) float64 {
	return MapTime(ts, a.MinTime, a.MaxTime, a.MinSpace, a.MaxSpace)
}
