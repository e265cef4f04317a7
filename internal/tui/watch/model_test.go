package watch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mattjoyce/hookgate/internal/events"
)

// Each row shows the time its admission arrived; rebuilding the table for a
// new event must not restamp older rows with the current clock.
func TestRowsKeepAdmissionTime(t *testing.T) {
	m := New("http://127.0.0.1:8080", "")

	at := time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC)
	data, err := json.Marshal(events.Admission{Service: "github", Status: 200})
	if err != nil {
		t.Fatal(err)
	}

	m.Update(eventMsg(events.Event{ID: 1, Type: events.TypeProcessed, At: at, Data: data}))
	rows := m.table.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0][0] != "09:30:00" {
		t.Errorf("time cell = %q, want 09:30:00", rows[0][0])
	}

	later := at.Add(42 * time.Minute)
	m.Update(eventMsg(events.Event{ID: 2, Type: events.TypeProcessed, At: later, Data: data}))
	rows = m.table.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0][0] != "10:12:00" {
		t.Errorf("newest row time = %q, want 10:12:00", rows[0][0])
	}
	if rows[1][0] != "09:30:00" {
		t.Errorf("older row restamped to %q, want 09:30:00", rows[1][0])
	}
}

func TestRowsCappedAtMaxRows(t *testing.T) {
	m := New("http://127.0.0.1:8080", "")
	data, _ := json.Marshal(events.Admission{Service: "github", Status: 200})

	for i := 0; i < maxRows+10; i++ {
		m.Update(eventMsg(events.Event{ID: int64(i + 1), At: time.Now(), Data: data}))
	}
	if got := len(m.table.Rows()); got != maxRows {
		t.Errorf("rows = %d, want %d", got, maxRows)
	}
}
