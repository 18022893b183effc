package registry

// Aggregate is the mean temperature over a snapshot and the number of
// entries that contributed to it.
type Aggregate struct {
	Mean  float64
	Count int
}

// Compute returns the mean temperature of snapshot. An empty snapshot yields
// the zero Aggregate, not an error. Readings are not validated: a NaN
// reading makes the mean NaN, which never exceeds a threshold.
func Compute(snapshot []Entry) Aggregate {
	if len(snapshot) == 0 {
		return Aggregate{}
	}

	var sum float64
	for _, entry := range snapshot {
		sum += entry.Record.Temperature
	}

	return Aggregate{
		Mean:  sum / float64(len(snapshot)),
		Count: len(snapshot),
	}
}

// Exceeds reports whether the mean is strictly greater than threshold.
func (a Aggregate) Exceeds(threshold float64) bool {
	return a.Mean > threshold
}
