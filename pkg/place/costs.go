package place

import "math"

// normEpsilon guards the reciprocal normalization factors: an initial cost
// below this threshold would otherwise turn into an Inf/NaN factor that
// poisons every subsequent delta.
const normEpsilon = 1e-12

// NocTerms are the network-on-chip cost sub-terms and their normalization
// factors. Only meaningful when NoC costing is enabled.
type NocTerms struct {
	AggregateBandwidth float64 `json:"aggregate_bandwidth"`
	Latency            float64 `json:"latency"`
	LatencyOverrun     float64 `json:"latency_overrun"`
	Congestion         float64 `json:"congestion"`

	AggregateBandwidthNorm float64 `json:"-"`
	LatencyNorm            float64 `json:"-"`
	LatencyOverrunNorm     float64 `json:"-"`
	CongestionNorm         float64 `json:"-"`
}

// Weights configures how the heterogeneous cost terms combine into the
// single scalar total.
type Weights struct {
	// Timing is the timing-cost share in [0, 1]; the bounding-box share is
	// its complement. Zero for bounding-box-only placement.
	Timing float64 `json:"timing" toml:"timing"`

	// Noc scales the combined normalized NoC terms against the conventional
	// (bb + timing) cost. Zero disables NoC weighting.
	Noc float64 `json:"noc" toml:"noc"`

	// NocBandwidth, NocLatency, NocCongestion weight the NoC sub-terms
	// relative to each other. They are rescaled to sum to 1 before use, so
	// only Noc controls NoC-vs-conventional importance.
	NocBandwidth  float64 `json:"noc_bandwidth" toml:"noc_bandwidth"`
	NocLatency    float64 `json:"noc_latency" toml:"noc_latency"`
	NocCongestion float64 `json:"noc_congestion" toml:"noc_congestion"`
}

// NormalizeNocFactors rescales the three NoC weighting factors so they sum
// to 1. No-op when they are all zero.
func (w *Weights) NormalizeNocFactors() {
	sum := w.NocBandwidth + w.NocLatency + w.NocCongestion
	if sum <= 0 {
		return
	}
	w.NocBandwidth /= sum
	w.NocLatency /= sum
	w.NocCongestion /= sum
}

// Costs is the running cost record: named scalar terms, reciprocal
// normalization factors, and the configured weighted total. It is updated
// incrementally after every committed move and recomputed from scratch by
// the checkpoint verifier to detect drift.
type Costs struct {
	BB     float64 `json:"bb"`
	Timing float64 `json:"timing"`

	BBNorm     float64 `json:"-"`
	TimingNorm float64 `json:"-"`

	Noc NocTerms `json:"noc"`

	Total float64 `json:"total"`
}

// Norm returns the reciprocal normalization factor for an initial cost,
// falling back to a neutral 1 when the cost is zero or near-zero.
func Norm(cost float64) float64 {
	if math.Abs(cost) < normEpsilon {
		return 1
	}
	return 1 / cost
}

// SetNorms derives all normalization factors from the current term values.
// Called once after initial cost computation.
func (c *Costs) SetNorms() {
	c.BBNorm = Norm(c.BB)
	c.TimingNorm = Norm(c.Timing)
	c.Noc.AggregateBandwidthNorm = Norm(c.Noc.AggregateBandwidth)
	c.Noc.LatencyNorm = Norm(c.Noc.Latency)
	c.Noc.LatencyOverrunNorm = Norm(c.Noc.LatencyOverrun)
	c.Noc.CongestionNorm = Norm(c.Noc.Congestion)
}

// NocNormalized returns the weighted sum of the normalized NoC sub-terms.
// Latency overrun shares the latency weighting factor.
func (c *Costs) NocNormalized(w Weights) float64 {
	return w.NocBandwidth*c.Noc.AggregateBandwidth*c.Noc.AggregateBandwidthNorm +
		w.NocLatency*(c.Noc.Latency*c.Noc.LatencyNorm+c.Noc.LatencyOverrun*c.Noc.LatencyOverrunNorm) +
		w.NocCongestion*c.Noc.Congestion*c.Noc.CongestionNorm
}

// RecomputeTotal refreshes Total from the term values, normalization
// factors, and weights. Timing terms are only read when the timing weight is
// non-zero, so bounding-box-only runs may leave them NaN.
func (c *Costs) RecomputeTotal(w Weights) {
	total := (1 - w.Timing) * c.BB * c.BBNorm
	if w.Timing > 0 {
		total += w.Timing * c.Timing * c.TimingNorm
	}
	if w.Noc > 0 {
		total += w.Noc * c.NocNormalized(w)
	}
	c.Total = total
}

// WeightedDelta converts raw per-term deltas into a single weighted total
// delta, using the stored normalization factors. This is what the Metropolis
// criterion tests.
func (c *Costs) WeightedDelta(w Weights, bbDelta, timingDelta float64, nocDelta NocTerms) float64 {
	d := (1 - w.Timing) * bbDelta * c.BBNorm
	if w.Timing > 0 {
		d += w.Timing * timingDelta * c.TimingNorm
	}
	if w.Noc > 0 {
		d += w.Noc * (w.NocBandwidth*nocDelta.AggregateBandwidth*c.Noc.AggregateBandwidthNorm +
			w.NocLatency*(nocDelta.Latency*c.Noc.LatencyNorm+nocDelta.LatencyOverrun*c.Noc.LatencyOverrunNorm) +
			w.NocCongestion*nocDelta.Congestion*c.Noc.CongestionNorm)
	}
	return d
}
