// Package testutil provides shared test doubles: scripted completion
// streams and a recording live-message transport.
package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/parley0/parley/internal/completion"
)

// ScriptedStream replays a fixed chunk sequence and then returns io.EOF.
type ScriptedStream struct {
	mu     sync.Mutex
	chunks []completion.Chunk
	next   int
	Closed bool
}

// NewScriptedStream creates a stream that yields the given chunks in order.
func NewScriptedStream(chunks ...completion.Chunk) *ScriptedStream {
	return &ScriptedStream{chunks: chunks}
}

func (s *ScriptedStream) Recv(ctx context.Context) (completion.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return completion.Chunk{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.chunks) {
		return completion.Chunk{}, io.EOF
	}
	c := s.chunks[s.next]
	s.next++
	return c, nil
}

func (s *ScriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// ScriptStreamer hands out scripted streams in order and records every
// request it sees. When the scripts run out it repeats the last one; when
// Err is set every call fails with it.
type ScriptStreamer struct {
	mu       sync.Mutex
	scripts  [][]completion.Chunk
	next     int
	Err      error
	Requests []completion.Request
}

// NewScriptStreamer creates a streamer whose successive Stream calls replay
// the given chunk scripts.
func NewScriptStreamer(scripts ...[]completion.Chunk) *ScriptStreamer {
	return &ScriptStreamer{scripts: scripts}
}

func (s *ScriptStreamer) Stream(_ context.Context, req completion.Request) (completion.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.scripts) == 0 {
		return NewScriptedStream(), nil
	}
	i := min(s.next, len(s.scripts)-1)
	s.next++
	return NewScriptedStream(s.scripts[i]...), nil
}

// Calls reports how many streams were requested.
func (s *ScriptStreamer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// TextScript builds a chunk script that streams the given fragments as
// content and closes with a plain stop.
func TextScript(fragments ...string) []completion.Chunk {
	chunks := make([]completion.Chunk, 0, len(fragments)+1)
	for _, f := range fragments {
		chunks = append(chunks, completion.Chunk{Content: f})
	}
	return append(chunks, completion.Chunk{Finish: completion.FinishStop})
}

// ToolCallScript builds a chunk script that streams a tool call with the
// argument payload split into fragments.
func ToolCallScript(name string, argFragments ...string) []completion.Chunk {
	chunks := []completion.Chunk{{ToolName: name}}
	for _, f := range argFragments {
		chunks = append(chunks, completion.Chunk{ToolArgs: f})
	}
	return append(chunks, completion.Chunk{Finish: completion.FinishToolCall})
}
