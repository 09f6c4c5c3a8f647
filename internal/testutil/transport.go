package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/fedplan/internal/plan"
)

// RecordingTransport answers requests with canned responses and records
// every request it receives. Responses are looked up by engine and request
// kind; a request without a canned answer fails.
//
// All methods are safe for concurrent use, so a RecordingTransport can sit
// behind an HTTP gateway.
type RecordingTransport struct {
	mu        sync.Mutex
	responses map[string]plan.Response
	errs      map[string]error
	requests  []plan.Request
}

// NewRecordingTransport creates a transport with no canned answers.
func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{
		responses: map[string]plan.Response{},
		errs:      map[string]error{},
	}
}

func answerKey(engine, kind string) string { return engine + "/" + kind }

// Respond sets the response to requests of kind sent to engine.
func (r *RecordingTransport) Respond(engine, kind string, resp plan.Response) *RecordingTransport {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[answerKey(engine, kind)] = resp
	return r
}

// Fail makes requests of kind sent to engine return err.
func (r *RecordingTransport) Fail(engine, kind string, err error) *RecordingTransport {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[answerKey(engine, kind)] = err
	return r
}

// Send records req and returns its canned answer.
func (r *RecordingTransport) Send(ctx context.Context, req plan.Request) (plan.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)

	if err := ctx.Err(); err != nil {
		return plan.Response{}, err
	}
	key := answerKey(req.Engine, req.Kind)
	if err, ok := r.errs[key]; ok {
		return plan.Response{}, err
	}
	resp, ok := r.responses[key]
	if !ok {
		return plan.Response{}, fmt.Errorf("testutil: no response for %s", key)
	}
	return resp, nil
}

// Requests returns a copy of the requests received so far, in order.
func (r *RecordingTransport) Requests() []plan.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.requests)
}
