package sensors

// Periodicity schedules a sensor's firing: next time = last_fire +
// period_sample, where period_sample may be a fixed duration or a draw from
// a deterministic distribution (spec §4.4). NextTimeStep is side-effect
// free; Advance commits to having fired and draws the next period.
type Periodicity struct {
	offset      float64
	sample      func() float64
	nextFire    float64
	initialized bool
}

// NewPeriodicity builds a fixed-period schedule with the given offset.
func NewPeriodicity(period, offset float64) *Periodicity {
	return &Periodicity{offset: offset, sample: func() float64 { return period }}
}

// NewJitteredPeriodicity builds a schedule whose period is redrawn on every
// cycle via sample (typically a closure over an rv.Stream).
func NewJitteredPeriodicity(offset float64, sample func() float64) *Periodicity {
	return &Periodicity{offset: offset, sample: sample}
}

// NextTimeStep reports the next scheduled firing time without advancing it.
func (p *Periodicity) NextTimeStep() float64 {
	if p == nil {
		return 0
	}
	if !p.initialized {
		p.nextFire = p.offset
		p.initialized = true
	}
	return p.nextFire
}

// Advance commits to a firing at the current NextTimeStep and draws the
// period for the following cycle.
func (p *Periodicity) Advance() {
	if p == nil {
		return
	}
	cur := p.NextTimeStep()
	period := p.sample()
	if period <= 0 {
		period = 1e-6
	}
	p.nextFire = cur + period
}

// Force pulls the next firing time to at or before now, used when a manual
// trigger demands an out-of-schedule observation.
func (p *Periodicity) Force(now float64) {
	if p == nil {
		return
	}
	if p.NextTimeStep() > now {
		p.nextFire = now
	}
}
