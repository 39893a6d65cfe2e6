package util

import (
	"testing"
	"time"
)

func TestUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{59 * time.Second, "00:00:59"},
		{time.Minute, "00:01:00"},
		{time.Hour + time.Minute + time.Second + 900*time.Millisecond, "01:01:01"},
		{24*time.Hour - time.Second, "23:59:59"},
		{50 * time.Hour, "2d 02:00:00"},
		{-10 * time.Second, "00:00:00"},
	}
	for _, tt := range tests {
		if got := Uptime(tt.d); got != tt.want {
			t.Errorf("Uptime(%v) = %s; want %s", tt.d, got, tt.want)
		}
	}
}
