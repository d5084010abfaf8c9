package raffle

// CapacityRebalancer scales active category quantities down to fit the ticket pool
type CapacityRebalancer struct {
	logger Logger
}

// NewCapacityRebalancer creates a rebalancer
func NewCapacityRebalancer(logger Logger) *CapacityRebalancer {
	if logger == nil {
		logger = NewSilentLogger()
	}
	return &CapacityRebalancer{logger: logger}
}

// Rebalance returns a copy of categories whose active demand fits poolSize, and
// whether anything changed.
//
// Each active category becomes max(1, floor(quantity * poolSize / demand)). The
// floor of 1 can leave the total slightly above poolSize when the pool is smaller
// than the number of active categories; that residue is accepted rather than
// iterated away. Detailed categories are trimmed from their last entry so the
// quantity still equals the sum of their entries.
func (r *CapacityRebalancer) Rebalance(categories []PrizeCategory, poolSize int) ([]PrizeCategory, bool) {
	out := CloneCategories(categories)

	demand := TotalDemand(out)
	if demand <= poolSize || demand == 0 {
		return out, false
	}

	if poolSize < 0 {
		poolSize = 0
	}
	ratio := float64(poolSize) / float64(demand)

	changed := false
	for i := range out {
		c := &out[i]
		if !c.Active {
			continue
		}

		newQuantity := max(MinCategoryQuantity, int(float64(c.Quantity)*ratio))
		if newQuantity == c.Quantity {
			continue
		}

		r.logger.Debug("Rebalance %s: quantity %d -> %d (pool=%d, demand=%d)",
			c.ID, c.Quantity, newQuantity, poolSize, demand)
		c.Quantity = newQuantity
		if c.Detailed() {
			c.IndividualPrizes = trimEntries(c.IndividualPrizes, newQuantity)
		}
		changed = true
	}

	if changed {
		r.logger.Info("Rebalanced categories to pool size %d: demand %d -> %d", poolSize, demand, TotalDemand(out))
	}
	return out, changed
}

// trimEntries shrinks entries from the tail until their quantities sum to target
func trimEntries(entries []IndividualPrize, target int) []IndividualPrize {
	total := 0
	for i := range entries {
		if total+entries[i].Quantity >= target {
			entries[i].Quantity = target - total
			if entries[i].Quantity == 0 {
				return entries[:i]
			}
			return entries[:i+1]
		}
		total += entries[i].Quantity
	}
	return entries
}

// PoolSizeWatcher remembers the last observed pool size so reactions only run on real changes
type PoolSizeWatcher struct {
	last     int
	observed bool
}

// Observe records size and reports the previous value and whether it changed.
// The first observation always counts as a change.
func (w *PoolSizeWatcher) Observe(size int) (previous int, changed bool) {
	previous = w.last
	changed = !w.observed || size != w.last
	w.last = size
	w.observed = true
	return previous, changed
}

// Last returns the last observed pool size
func (w *PoolSizeWatcher) Last() int { return w.last }
