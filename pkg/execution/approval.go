// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package execution

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
)

// Request is one pending approval: a tool call waiting on a human (or
// automated) decision.
type Request struct {
	ID       string
	ToolName string
	Params   map[string]interface{}

	decision chan bool
}

// Resolve records the caller's decision and wakes whatever goroutine is
// blocked on it in ApprovalQueue.Await.
func (r *Request) Resolve(approved bool) {
	select {
	case r.decision <- approved:
	default:
	}
}

// ApprovalQueue holds tool calls waiting on an approval decision. It has no
// worker of its own: whatever surface presents approvals to a human (the
// chat REPL, an API handler) calls Next to pull the next pending request
// and Resolve to answer it — a cooperative worker rather than a fixed
// polling loop.
type ApprovalQueue struct {
	mu      sync.Mutex
	pending chan *Request
}

// NewApprovalQueue constructs a queue with the given backlog capacity.
func NewApprovalQueue(capacity int) *ApprovalQueue {
	if capacity <= 0 {
		capacity = 16
	}
	return &ApprovalQueue{pending: make(chan *Request, capacity)}
}

// Next blocks until a request is enqueued or ctx is done.
func (q *ApprovalQueue) Next(ctx context.Context) (*Request, error) {
	select {
	case req := <-q.pending:
		return req, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Await enqueues a request and blocks the caller until it's resolved or the
// timeout elapses.
func (q *ApprovalQueue) Await(ctx context.Context, toolName string, params map[string]interface{}, timeout time.Duration) (bool, error) {
	req := &Request{
		ID:       uuid.NewString(),
		ToolName: toolName,
		Params:   params,
		decision: make(chan bool, 1),
	}

	select {
	case q.pending <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case approved := <-req.decision:
		return approved, nil
	case <-timer.C:
		return false, gcserr.New(gcserr.ApprovalTimeout, "approval request timed out")
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
