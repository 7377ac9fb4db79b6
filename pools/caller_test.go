package pools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poolstate/poolstate-client-go/chains"
)

// fakeCaller is a scriptable chains.ContractCaller that records every read it
// receives.
type fakeCaller struct {
	chainID uint64

	// onCall handles single reads; onBatch handles batched reads. If onBatch
	// is nil, batches fall back to onCall per element (all-or-nothing).
	onCall  func(call chains.Call) ([]any, error)
	onBatch func(calls []chains.Call) ([][]any, error)

	mu      sync.Mutex
	calls   []chains.Call
	batches int
}

func (f *fakeCaller) ChainID() uint64 {
	return f.chainID
}

func (f *fakeCaller) Call(_ context.Context, call chains.Call) ([]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return f.onCall(call)
}

func (f *fakeCaller) BatchCall(_ context.Context, calls []chains.Call) ([][]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, calls...)
	f.batches++
	f.mu.Unlock()

	if f.onBatch != nil {
		return f.onBatch(calls)
	}
	out := make([][]any, len(calls))
	for i, call := range calls {
		res, err := f.onCall(call)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

// methodCalls counts reads of a given method, across single and batched calls.
func (f *fakeCaller) methodCalls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (f *fakeCaller) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// respondByMethod builds an onCall handler serving fixed outputs per method.
func respondByMethod(responses map[string][]any) func(chains.Call) ([]any, error) {
	return func(call chains.Call) ([]any, error) {
		out, ok := responses[call.Method]
		if !ok {
			return nil, fmt.Errorf("unexpected call %s on %s", call.Method, call.To.Hex())
		}
		return out, nil
	}
}

func testLogger() chains.Logger {
	return slog.New(slog.DiscardHandler)
}
