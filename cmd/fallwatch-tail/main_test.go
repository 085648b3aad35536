package main

import (
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.Local)
	tests := []struct {
		ev   event
		want string
	}{
		{event{Kind: "status", Status: "active"}, "monitor is active"},
		{event{Kind: "fall_alert", Time: at, Episode: "e1", AspectRatio: 0.3, ConsecutiveFrames: 5}, "04:05:06 FALL DETECTED episode=e1 ratio=0.30 frames=5"},
		{event{Kind: "recovered", Time: at, Episode: "e1"}, "04:05:06 recovered episode=e1"},
		{event{Kind: "failed", Time: at, Err: "boom"}, "04:05:06 monitor failed: boom"},
		{event{Kind: "started", Time: at}, "04:05:06 started"},
	}
	for _, tt := range tests {
		if got := format(tt.ev); got != tt.want {
			t.Errorf("format(%s): got %q, want %q", tt.ev.Kind, got, tt.want)
		}
	}
}
