package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/agendave/agendave/services/booking-service/internal/model"
	"github.com/agendave/agendave/services/booking-service/internal/storage"
)

func memoryOpener(t *testing.T) opener {
	t.Helper()
	m := storage.NewMemory()
	m.PutService(model.Service{ID: "svc-60", ProviderID: "p1", DurationMinutes: 60, Active: true})
	if err := m.ReplaceWeeklySchedule(context.Background(), model.ProviderScope("p1"), []model.AvailabilityWindow{
		{Weekday: time.Monday, Start: 9 * 60, End: 11 * 60, Active: true},
	}); err != nil {
		t.Fatalf("ReplaceWeeklySchedule: %v", err)
	}
	m.PutAppointment(model.Appointment{ID: "a1", ProviderID: "p1", ServiceID: "svc-60", Date: "2026-03-02", Time: 9 * 60, Status: model.StatusConfirmed})
	return func(context.Context, string) (Store, func(), error) {
		return m, func() {}, nil
	}
}

func execute(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--timezone", "UTC"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSlotsCommand(t *testing.T) {
	out, err := execute(t, memoryOpener(t), "slots", "--provider", "p1", "--service", "svc-60", "--date", "2026-03-02")
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	var got struct {
		Slots []string `json:"slots"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(got.Slots) != 1 || got.Slots[0] != "10:00" {
		t.Fatalf("unexpected slots %v", got.Slots)
	}

	if _, err := execute(t, memoryOpener(t), "slots", "--provider", "p1", "--date", "2026-03-02"); err == nil {
		t.Fatalf("expected error without --service or --duration")
	}
}

func TestValidateCommand(t *testing.T) {
	if _, err := execute(t, memoryOpener(t), "validate", "--provider", "p1", "--service", "svc-60", "--date", "2026-03-02", "--time", "10:00"); err != nil {
		t.Fatalf("expected free slot, got %v", err)
	}
	out, err := execute(t, memoryOpener(t), "validate", "--provider", "p1", "--service", "svc-60", "--date", "2026-03-02", "--time", "09:30")
	if err == nil || !strings.Contains(err.Error(), "conflict") {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if !strings.Contains(out, `"ok": false`) {
		t.Fatalf("expected result body, got %q", out)
	}
	if _, err := execute(t, memoryOpener(t), "validate", "--provider", "p1", "--service", "svc-60", "--date", "2026-03-02", "--time", "09:00", "--ignore", "a1"); err != nil {
		t.Fatalf("expected own slot to validate when ignored, got %v", err)
	}
}

func TestMigrateRequiresMigrator(t *testing.T) {
	if _, err := execute(t, memoryOpener(t), "migrate"); err == nil {
		t.Fatalf("expected memory store to refuse migrations")
	}
}
