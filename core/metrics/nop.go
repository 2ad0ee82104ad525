package metrics

type nopCounter struct{}

func (nopCounter) Inc()        {}
func (nopCounter) Add(float64) {}

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

func NopCounter() Counter { return nopCounter{} }
func NopTimer() Timer     { return nopTimer{} }
