package utils

import (
	"testing"
	"time"
)

func TestJoinCounter(t *testing.T) {
	counter := NewJoinCounter(5 * time.Second)
	now := time.Now()
	if stats := counter.Add("a", now); stats.Recent != 1 || stats.Rejoins != 0 {
		t.Fatalf("expected first join, got %+v", stats)
	}
	counter.Add("b", now.Add(1*time.Second))
	counter.Add("c", now.Add(2*time.Second))
	if stats := counter.Add("d", now.Add(3*time.Second)); stats.Recent != 4 {
		t.Fatalf("expected 4, got %d", stats.Recent)
	}
	if stats := counter.Add("e", now.Add(7*time.Second)); stats.Recent != 2 {
		t.Fatalf("expected 2, got %d", stats.Recent)
	}
	if count := counter.Count(now.Add(20 * time.Second)); count != 0 {
		t.Fatalf("expected empty window, got %d", count)
	}
}

func TestJoinCounterRejoins(t *testing.T) {
	counter := NewJoinCounter(time.Minute)
	now := time.Now()
	counter.Add("a", now)
	counter.Add("b", now.Add(time.Second))
	stats := counter.Add("a", now.Add(2*time.Second))
	if stats.Rejoins != 1 || stats.Recent != 3 {
		t.Fatalf("expected one rejoin in 3 joins, got %+v", stats)
	}
	stats = counter.Add("a", now.Add(2*time.Minute))
	if stats.Rejoins != 0 {
		t.Fatalf("expired joins should not count, got %+v", stats)
	}
}
