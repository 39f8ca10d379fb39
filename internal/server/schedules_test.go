package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestScheduleCreate(t *testing.T) {
	st, mock, cleanup := mockStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id"}).AddRow("sched-1")
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO schedules (question, job_type, target_sources, cron) VALUES ($1,$2,$3,$4) RETURNING id")).
		WithArgs("weekly market recap", "research", 6, "@daily").
		WillReturnRows(rows)

	h := &SchedulesHandler{Store: st}
	c, rec := jsonContext(t, http.MethodPost, "/api/schedules", CreateScheduleRequest{
		Question:      "weekly market recap",
		JobType:       "research",
		TargetSources: 6,
	})
	if err := h.create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp IDResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != "sched-1" {
		t.Fatalf("expected sched-1, got %q", resp.ID)
	}
}

func TestScheduleCreateInvalidCron(t *testing.T) {
	st, _, cleanup := mockStore(t)
	defer cleanup()

	h := &SchedulesHandler{Store: st}
	c, _ := jsonContext(t, http.MethodPost, "/api/schedules", CreateScheduleRequest{
		Question: "weekly market recap",
		Cron:     "every tuesday",
	})
	err := h.create(c)
	if code := httpCode(t, err); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestScheduleDisableUnknown(t *testing.T) {
	st, mock, cleanup := mockStore(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedules SET enabled=$2 WHERE id=$1")).
		WithArgs("missing", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	h := &SchedulesHandler{Store: st}
	c, _ := jsonContext(t, http.MethodPost, "/api/schedules/missing/disable", nil)
	c.SetParamNames("id")
	c.SetParamValues("missing")
	err := h.disable(c)
	if code := httpCode(t, err); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestIsDue(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 2, 10, 12, 30, 0, 0, time.UTC)
	halfHourAgo := now.Add(-30 * time.Minute)
	hourAgo := now.Add(-time.Hour)
	twoHoursAgo := now.Add(-2 * time.Hour)
	dayAndHourAgo := now.Add(-25 * time.Hour)

	cases := []struct {
		name string
		cron string
		last *time.Time
		want bool
	}{
		{"daily never run", "@daily", nil, true},
		{"daily ran recently", "@daily", &hourAgo, false},
		{"daily ran yesterday", "@daily", &dayAndHourAgo, true},
		{"hourly ran two hours ago", "@hourly", &twoHoursAgo, true},
		{"hourly ran recently", "@hourly", &halfHourAgo, false},
		{"cron top of hour elapsed", "0 * * * *", &twoHoursAgo, true},
		{"cron yearly not due", "0 0 1 1 *", &hourAgo, false},
		{"invalid spec degrades to daily", "every tuesday", &dayAndHourAgo, true},
		{"invalid spec recent run", "every tuesday", &hourAgo, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := isDue(tc.cron, tc.last, now); got != tc.want {
				t.Fatalf("isDue(%q) = %v, want %v", tc.cron, got, tc.want)
			}
		})
	}
}
