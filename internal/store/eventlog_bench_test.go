package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/rendis/callgraph/pkg/schema"
)

func newBenchStore(b *testing.B) (*LibSQLStore, *EventLog) {
	b.Helper()
	dir := b.TempDir()
	s, err := NewLibSQLStore("file:" + dir + "/bench.db")
	if err != nil {
		b.Fatal(err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = s.Close() })
	return s, NewEventLog(s)
}

func seedBenchRun(b *testing.B, s *LibSQLStore) string {
	b.Helper()
	id := uuid.New().String()
	if err := s.CreateRun(context.Background(), &Run{
		ID:   id,
		Name: "bench",
		Definition: schema.TaskDefinition{
			Name:  "bench",
			Nodes: []schema.NodeDefinition{{ID: "a", Kind: "value"}},
		},
	}); err != nil {
		b.Fatal(err)
	}
	return id
}

func BenchmarkEventAppend_Sequential(b *testing.B) {
	s, el := newBenchStore(b)
	runID := seedBenchRun(b, s)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := el.AppendEvent(ctx, &Event{
			RunID:  runID,
			NodeID: "a",
			Type:   schema.EventNodeReturned,
			Step:   int64(i),
		}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEventAppend_Concurrent(b *testing.B) {
	for _, writers := range []int{2, 8} {
		b.Run(fmt.Sprintf("writers=%d", writers), func(b *testing.B) {
			benchEventAppendConcurrent(b, writers)
		})
	}
}

func benchEventAppendConcurrent(b *testing.B, writers int) {
	s, el := newBenchStore(b)
	ctx := context.Background()
	runIDs := make([]string, writers)
	for i := range runIDs {
		runIDs[i] = seedBenchRun(b, s)
	}

	b.ResetTimer()
	var wg sync.WaitGroup
	per := b.N / writers
	if per == 0 {
		per = 1
	}
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(runID string) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				_ = el.AppendEvent(ctx, &Event{RunID: runID, NodeID: "a", Type: schema.EventNodeReturned})
			}
		}(runIDs[w])
	}
	wg.Wait()
}

func BenchmarkEventReplay(b *testing.B) {
	s, el := newBenchStore(b)
	runID := seedBenchRun(b, s)
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		node := fmt.Sprintf("n%d", i%10)
		if err := el.AppendEvent(ctx, &Event{RunID: runID, NodeID: node, Type: schema.EventNodeReturned}); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := el.ReplayEvents(ctx, runID); err != nil {
			b.Fatal(err)
		}
	}
}
