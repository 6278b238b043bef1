package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/propagation"

	"github.com/zoobzio/hellotrace"
)

// MockCollector wraps a real collector with test utilities.
// Collection is synchronous so assertions need no sleeps.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []hellotrace.SpanRecord
	*hellotrace.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, bufferSize int) *MockCollector {
	collector := hellotrace.NewCollector(bufferSize)
	collector.SetSyncMode(true)
	return &MockCollector{
		Collector: collector,
		t:         t,
	}
}

// NewTracer returns a tracer reporting to a fresh MockCollector. The tracer
// is closed when the test ends.
func NewTracer(t *testing.T, service string, opts ...hellotrace.Option) (*hellotrace.Tracer, *MockCollector) {
	t.Helper()
	collector := NewMockCollector(t, 1000)
	opts = append(opts, hellotrace.WithReporter(collector.Collector))
	tracer := hellotrace.New(service, opts...)
	t.Cleanup(func() { _ = tracer.Close(context.Background()) })
	return tracer, collector
}

// Export returns collected spans and clears the buffer.
func (m *MockCollector) Export() []hellotrace.SpanRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	spans := m.Collector.Export()
	m.exported = append(m.exported, spans...)
	return spans
}

// GetAll returns every span exported so far without losing any.
func (m *MockCollector) GetAll() []hellotrace.SpanRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.Collector.Export(); len(current) > 0 {
		m.exported = append(m.exported, current...)
	}
	all := make([]hellotrace.SpanRecord, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits until at least expected spans were collected.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []hellotrace.SpanRecord {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if spans := m.GetAll(); len(spans) >= expected {
			return spans
		}
		<-ticker.C
	}

	spans := m.GetAll()
	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
	return spans
}

// AssertSpanCount verifies the exact number of collected spans.
func (m *MockCollector) AssertSpanCount(expected int) {
	if got := len(m.GetAll()); got != expected {
		m.t.Errorf("Expected %d spans, got %d", expected, got)
	}
}

// AssertSpanNamed checks if a span with given name exists.
func (m *MockCollector) AssertSpanNamed(name string) *hellotrace.SpanRecord {
	spans := m.GetAll()
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return nil
}

// AssertParentChild verifies parent-child relationship.
func (m *MockCollector) AssertParentChild(parentName, childName string) {
	AssertParentChild(m.t, m.GetAll(), parentName, childName)
}

// AssertParentChild verifies that childName is a direct child of parentName
// within spans, which may come from several collectors.
func AssertParentChild(t *testing.T, spans []hellotrace.SpanRecord, parentName, childName string) {
	t.Helper()
	var parent, child *hellotrace.SpanRecord
	for i := range spans {
		if spans[i].Name == parentName {
			parent = &spans[i]
		}
		if spans[i].Name == childName {
			child = &spans[i]
		}
	}

	if parent == nil {
		t.Errorf("Parent span '%s' not found", parentName)
		return
	}
	if child == nil {
		t.Errorf("Child span '%s' not found", childName)
		return
	}
	if child.ParentID != parent.SpanID {
		t.Errorf("Parent-child relationship broken: %s is not parent of %s. Child ParentID=%s, Parent SpanID=%s",
			parentName, childName, child.ParentID, parent.SpanID)
	}
	if child.TraceID != parent.TraceID {
		t.Errorf("Trace ID mismatch: parent=%s, child=%s", parent.TraceID, child.TraceID)
	}
}

// SpanTree represents a hierarchical view of spans.
type SpanTree struct {
	Span     hellotrace.SpanRecord
	Children []*SpanTree
}

// BuildSpanTree constructs a forest from a flat span list. Spans whose
// parent is not in the list become roots.
func BuildSpanTree(spans []hellotrace.SpanRecord) []*SpanTree {
	nodes := make(map[hellotrace.SpanID]*SpanTree, len(spans))
	for i := range spans {
		nodes[spans[i].SpanID] = &SpanTree{Span: spans[i]}
	}

	var roots []*SpanTree
	for i := range spans {
		node := nodes[spans[i].SpanID]
		if parent, ok := nodes[spans[i].ParentID]; ok && spans[i].ParentID.IsValid() {
			parent.Children = append(parent.Children, node)
			continue
		}
		roots = append(roots, node)
	}
	return roots
}

// PrintSpanTree formats span tree for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	fmt.Fprintf(sb, "%s%s [%s] (%.2fms)\n",
		strings.Repeat("  ", depth), node.Span.Name, node.Span.Service, node.Span.Duration.Seconds()*1000)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// MockService simulates a remote service. Every Call crosses a process
// boundary: the caller's span context is injected into a header map, and
// the service extracts it with its own tracer.
type MockService struct {
	tracer       *hellotrace.Tracer
	collector    *MockCollector
	name         string
	mu           sync.Mutex
	requestCount int
	failNext     bool
}

// NewMockService creates a simulated service with its own tracer.
func NewMockService(t *testing.T, name string, opts ...hellotrace.Option) *MockService {
	tracer, collector := NewTracer(t, name, opts...)
	return &MockService{tracer: tracer, collector: collector, name: name}
}

// Tracer returns the service's tracer.
func (m *MockService) Tracer() *hellotrace.Tracer { return m.tracer }

// Collector returns the spans the service reported.
func (m *MockService) Collector() *MockCollector { return m.collector }

// FailNext makes the next call return an error.
func (m *MockService) FailNext() {
	m.mu.Lock()
	m.failNext = true
	m.mu.Unlock()
}

// Call injects the active span of ctx with the caller's tracer, then serves
// operation as a server span continuing that trace. handler runs inside the
// server span and may call further services.
func (m *MockService) Call(ctx context.Context, caller *hellotrace.Tracer, operation string, handler func(context.Context) error) error {
	carrier := propagation.MapCarrier{}
	if span := hellotrace.SpanFromContext(ctx); span != nil {
		if err := caller.Inject(span.Context(), carrier); err != nil {
			return err
		}
	}
	return m.Serve(carrier, operation, handler)
}

// Serve handles one request whose headers are carrier.
func (m *MockService) Serve(carrier hellotrace.Carrier, operation string, handler func(context.Context) error) error {
	m.mu.Lock()
	m.requestCount++
	count := m.requestCount
	fail := m.failNext
	m.failNext = false
	m.mu.Unlock()

	parent, err := m.tracer.Extract(carrier)
	if err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}

	return m.tracer.WithSpan(context.Background(), fmt.Sprintf("%s.%s", m.name, operation), func(ctx context.Context) error {
		span := hellotrace.SpanFromContext(ctx)
		span.SetTag("request_id", count)
		if fail {
			return fmt.Errorf("%s: simulated failure", m.name)
		}
		if handler != nil {
			return handler(ctx)
		}
		return nil
	},
		hellotrace.ChildOf(parent),
		hellotrace.WithTag(hellotrace.TagSpanKind, hellotrace.SpanKindServer),
		hellotrace.WithTag(hellotrace.TagComponent, m.name),
	)
}

// RequestCount returns how many requests the service handled.
func (m *MockService) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// SpanMatcher provides fluent assertions for spans.
type SpanMatcher struct {
	t    *testing.T
	span *hellotrace.SpanRecord
}

// NewSpanMatcher creates a matcher for span assertions.
func NewSpanMatcher(t *testing.T, span *hellotrace.SpanRecord) *SpanMatcher {
	return &SpanMatcher{t: t, span: span}
}

// HasTag verifies tag exists with value.
func (m *SpanMatcher) HasTag(key string, value any) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if actual, exists := m.span.Tags[key]; !exists {
		m.t.Errorf("Span %s missing tag '%s'", m.span.Name, key)
	} else if actual != value {
		m.t.Errorf("Span %s tag '%s': expected '%v', got '%v'", m.span.Name, key, value, actual)
	}
	return m
}

// HasBaggage verifies a baggage item.
func (m *SpanMatcher) HasBaggage(key, value string) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if actual := m.span.Baggage[key]; actual != value {
		m.t.Errorf("Span %s baggage '%s': expected '%s', got '%s'", m.span.Name, key, value, actual)
	}
	return m
}

// HasParent verifies parent relationship.
func (m *SpanMatcher) HasParent(parentID hellotrace.SpanID) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if m.span.ParentID != parentID {
		m.t.Errorf("Span %s wrong parent: expected %s, got %s", m.span.Name, parentID, m.span.ParentID)
	}
	return m
}

// IsRoot verifies the span has no parent.
func (m *SpanMatcher) IsRoot() *SpanMatcher {
	if m.span != nil && m.span.ParentID.IsValid() {
		m.t.Errorf("Span %s should be a root, has parent %s", m.span.Name, m.span.ParentID)
	}
	return m
}

// TraceAnalyzer provides trace-level assertions.
type TraceAnalyzer struct {
	byID   map[hellotrace.SpanID]hellotrace.SpanRecord
	byName map[string][]hellotrace.SpanRecord
	spans  []hellotrace.SpanRecord
	trees  []*SpanTree
}

// NewTraceAnalyzer creates an analyzer for a set of spans.
func NewTraceAnalyzer(spans []hellotrace.SpanRecord) *TraceAnalyzer {
	a := &TraceAnalyzer{
		spans:  spans,
		byID:   make(map[hellotrace.SpanID]hellotrace.SpanRecord, len(spans)),
		byName: make(map[string][]hellotrace.SpanRecord),
	}
	for i := range spans {
		a.byID[spans[i].SpanID] = spans[i]
		a.byName[spans[i].Name] = append(a.byName[spans[i].Name], spans[i])
	}
	a.trees = BuildSpanTree(spans)
	return a
}

// GetSpan retrieves span by ID.
func (a *TraceAnalyzer) GetSpan(id hellotrace.SpanID) (hellotrace.SpanRecord, bool) {
	span, ok := a.byID[id]
	return span, ok
}

// GetSpansByName retrieves all spans with given name.
func (a *TraceAnalyzer) GetSpansByName(name string) []hellotrace.SpanRecord {
	return a.byName[name]
}

// CountSpans returns total span count.
func (a *TraceAnalyzer) CountSpans() int { return len(a.spans) }

// CountTrees returns number of root spans.
func (a *TraceAnalyzer) CountTrees() int { return len(a.trees) }

// TraceIDs returns the distinct trace ids.
func (a *TraceAnalyzer) TraceIDs() map[hellotrace.TraceID]int {
	ids := make(map[hellotrace.TraceID]int)
	for i := range a.spans {
		ids[a.spans[i].TraceID]++
	}
	return ids
}

// VerifyChain checks that the named spans form a parent-child chain in order.
func (a *TraceAnalyzer) VerifyChain(names ...string) error {
	if len(names) < 2 {
		return fmt.Errorf("chain requires at least 2 spans")
	}

	var prev *hellotrace.SpanRecord
	for i, name := range names {
		spans := a.GetSpansByName(name)
		if len(spans) == 0 {
			return fmt.Errorf("span '%s' not found", name)
		}
		span := spans[0]
		if prev != nil {
			if span.ParentID != prev.SpanID {
				return fmt.Errorf("broken chain: %s is not child of %s", name, names[i-1])
			}
			if span.TraceID != prev.TraceID {
				return fmt.Errorf("broken chain: %s left trace %s", name, prev.TraceID)
			}
		}
		prev = &span
	}
	return nil
}
