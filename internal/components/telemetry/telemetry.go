package telemetry

import (
	"fmt"
	"sync"
)

// API is an abstraction over logging/metrics so that components can be
// asserted against in tests.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that has broken in a way that should be addressed.
	//
	// The `id` names the component that broke, not the specific line that broke it.
	// ex. a failed POST inside the form transport's Submit method is reported as
	// `form_transport: transport.submit`, with the wrapped error as a param.
	//
	// Formatting rules:
	// 1) all lowercase
	// 2) use underscores for large components
	// 3) use dashes for methods part of a larger component
	//
	// See the `report_...` constants scattered around the packages for examples.
	ReportBroken(id string, params ...any)

	// ReportWarning reports a scenario that does not necessarily indicate brokenness,
	// like an oversized label skipped during extraction.
	ReportWarning(id string, params ...any)

	// ReportDebug reports debug information that is dropped unless the log level is debug.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the current count of a specific event, counts are
	// points of data over time and should not be summed.
	ReportCount(id string, count int64)
}

// ScopedAPI attaches a namespace to every id reported through it, like a
// sub-logger with a prefix.
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI creates a ScopedAPI out of a given namespace and another api.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}

// Report is a single event captured by MemoryAPI.
type Report struct {
	Level  string
	Id     string
	Params []any
}

// MemoryAPI keeps every report in memory, it is meant for tests that need
// to assert a warning or breakage was reported.
type MemoryAPI struct {
	mutex   sync.Mutex
	Reports []Report
	Counts  map[string]int64
}

func (m *MemoryAPI) push(level, id string, params []any) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Reports = append(m.Reports, Report{Level: level, Id: id, Params: params})
}

func (m *MemoryAPI) ReportBroken(id string, params ...any) {
	m.push("broken", id, params)
}

func (m *MemoryAPI) ReportWarning(id string, params ...any) {
	m.push("warning", id, params)
}

func (m *MemoryAPI) ReportDebug(msg string, params ...any) {
	m.push("debug", msg, params)
}

func (m *MemoryAPI) ReportCount(id string, count int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.Counts == nil {
		m.Counts = map[string]int64{}
	}
	m.Counts[id] = count
}

// Filter returns the reports of a given level.
func (m *MemoryAPI) Filter(level string) []Report {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var out []Report
	for _, r := range m.Reports {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}
