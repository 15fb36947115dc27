package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.CohortFetchesTotal == nil {
		t.Error("CohortFetchesTotal is nil")
	}
	if m.DirectoryEntries == nil {
		t.Error("DirectoryEntries is nil")
	}
	if m.WebhookRequestsTotal == nil {
		t.Error("WebhookRequestsTotal is nil")
	}
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	_ = New(registry)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	_ = New(registry)
}

func TestRecordCohortFetch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordCohortFetch("success")
	m.RecordCohortFetch("success")
	m.RecordCohortFetch("error")

	if got := testutil.ToFloat64(m.CohortFetchesTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CohortFetchesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}

func TestDirectoryGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetDirectorySize(1200, 40)
	m.SetDirectoryReady(true)

	if got := testutil.ToFloat64(m.DirectoryEntries); got != 1200 {
		t.Errorf("entries = %v, want 1200", got)
	}
	if got := testutil.ToFloat64(m.DirectoryCohorts); got != 40 {
		t.Errorf("cohorts = %v, want 40", got)
	}
	if got := testutil.ToFloat64(m.DirectoryReady); got != 1 {
		t.Errorf("ready = %v, want 1", got)
	}

	m.SetDirectoryReady(false)
	if got := testutil.ToFloat64(m.DirectoryReady); got != 0 {
		t.Errorf("ready = %v, want 0", got)
	}
}

func TestRecordWebhook(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordWebhook("message", "success", 0.2)
	if got := testutil.ToFloat64(m.WebhookRequestsTotal.WithLabelValues("message", "success")); got != 1 {
		t.Errorf("webhook count = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.WebhookDurationSeconds); got != 1 {
		t.Errorf("histogram series = %d, want 1", got)
	}
}

func TestRecordLogDropped(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordLogDropped()
	m.RecordLogDropped()

	if got := testutil.ToFloat64(m.LogRecordsDropped); got != 2 {
		t.Errorf("dropped = %v, want 2", got)
	}
}
