package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := MessagesIngested
	Init()
	if MessagesIngested != first {
		t.Error("Init must not re-register collectors")
	}
}

func TestCountersRecord(t *testing.T) {
	Init()

	before := testutil.ToFloat64(PollsTotal.WithLabelValues("log"))
	PollsTotal.WithLabelValues("log").Inc()
	if got := testutil.ToFloat64(PollsTotal.WithLabelValues("log")); got != before+1 {
		t.Errorf("overlay_polls_total{resource=log} = %v, want %v", got, before+1)
	}

	StoreSize.Set(42)
	if got := testutil.ToFloat64(StoreSize); got != 42 {
		t.Errorf("overlay_store_messages = %v, want 42", got)
	}
}
