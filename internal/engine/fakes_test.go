package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/navincodesalot/terascout/internal/eventbus"
	"github.com/navincodesalot/terascout/internal/llm"
)

// fakeFetcher returns a scripted sequence of (text, err) pairs, advancing
// one entry per call; the last entry repeats once exhausted.
type fakeFetcher struct {
	mutex   sync.Mutex
	calls   int32
	results []fetchCall
}

type fetchCall struct {
	text string
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (string, error) {
	idx := int(atomic.AddInt32(&f.calls, 1)) - 1

	f.mutex.Lock()
	defer f.mutex.Unlock()

	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}

	r := f.results[idx]

	return r.text, r.err
}

// fakeAnalyzer is a scripted Analyzer: every AnalyzeChange call returns
// the same analysis, Dedup returns a fixed verdict.
type fakeAnalyzer struct {
	analysis  llm.Analysis
	isDup     bool
	callCount int32
}

func (a *fakeAnalyzer) ExtractQuery(_ context.Context, raw string) (string, llm.TimeWindow, error) {
	return raw, llm.Window7Days, nil
}

func (a *fakeAnalyzer) AnalyzeChange(_ context.Context, _, _, _ string) (llm.Analysis, error) {
	atomic.AddInt32(&a.callCount, 1)
	return a.analysis, nil
}

func (a *fakeAnalyzer) Dedup(_ context.Context, _ string, _ []string) (bool, error) {
	return a.isDup, nil
}

// fakeMailer records every send and can be made to fail on demand.
type fakeMailer struct {
	mutex sync.Mutex
	sent  []string
	err   error
}

func (m *fakeMailer) Send(_ context.Context, _, to, subject, _ string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.err != nil {
		return m.err
	}

	m.sent = append(m.sent, fmt.Sprintf("%s|%s", to, subject))

	return nil
}

func (m *fakeMailer) sentCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return len(m.sent)
}

// fakeBus records published events without touching a real broker.
type fakeBus struct {
	mutex  sync.Mutex
	events []string
}

func (b *fakeBus) Publish(_ context.Context, e eventbus.Event) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.events = append(b.events, e.Kind)

	return nil
}

func (b *fakeBus) Close() error { return nil }
