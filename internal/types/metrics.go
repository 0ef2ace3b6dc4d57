package types

// ErrorKey is the metrics key that marks an entry as a contained failure.
const ErrorKey = "error"

// Metrics is the open-ended output record produced by a unit run.
type Metrics map[string]any

// failure is the value stored under ErrorKey by ErrorMetrics. It encodes as
// a plain string, but only entries built by ErrorMetrics carry it, so a unit
// that legitimately reports {"error": "none found"} is not counted as failed.
type failure string

// ErrorMetrics returns the error-shaped entry recorded for a failed unit.
func ErrorMetrics(err error) Metrics {
	if err == nil {
		return Metrics{ErrorKey: failure("unknown error")}
	}
	return Metrics{ErrorKey: failure(err.Error())}
}

// Err reports whether m is an entry built by ErrorMetrics and returns its
// message.
func (m Metrics) Err() (string, bool) {
	msg, ok := m[ErrorKey].(failure)
	return string(msg), ok
}

// Keys returns the metric keys in sorted order.
func (m Metrics) Keys() []string {
	return sortedKeys(m)
}

// Results maps unit name to the metrics that unit produced (or its
// error-shaped entry) for one experiment call.
type Results map[string]Metrics

// Names returns the unit names in sorted order.
func (r Results) Names() []string {
	return sortedKeys(r)
}

// Failed returns the sorted names whose entry is error-shaped.
func (r Results) Failed() []string {
	var failed []string
	for _, name := range r.Names() {
		if _, ok := r[name].Err(); ok {
			failed = append(failed, name)
		}
	}
	return failed
}

// Succeeded returns the sorted names whose entry is not error-shaped.
func (r Results) Succeeded() []string {
	var ok []string
	for _, name := range r.Names() {
		if _, failed := r[name].Err(); !failed {
			ok = append(ok, name)
		}
	}
	return ok
}
