package chronosdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DaySummary sums one UTC calendar day.
type DaySummary struct {
	Date          time.Time `json:"date" format:"date-time"`
	TotalHours    float64   `json:"total_hours"`
	BillableHours float64   `json:"billable_hours"`
}

// ProjectSummary sums one project across a report range.
type ProjectSummary struct {
	ProjectName   string  `json:"project_name"`
	TotalHours    float64 `json:"total_hours"`
	BillableHours float64 `json:"billable_hours"`
}

type DailyReport struct {
	DaySummary
	Entries []TimeEntry `json:"entries"`
}

type WeeklyReport struct {
	StartDate time.Time    `json:"start_date" format:"date-time"`
	EndDate   time.Time    `json:"end_date" format:"date-time"`
	Days      []DaySummary `json:"days"`
}

type MonthlyReport struct {
	StartDate time.Time        `json:"start_date" format:"date-time"`
	EndDate   time.Time        `json:"end_date" format:"date-time"`
	Days      []DaySummary     `json:"days"`
	Projects  []ProjectSummary `json:"projects"`
}

// PayrollExport is the read-through projection consumed by payroll. All
// timestamps are UTC with an explicit zone marker; the consumer performs
// any local-time conversion.
type PayrollExport struct {
	StartDate time.Time     `json:"start_date" format:"date-time"`
	EndDate   time.Time     `json:"end_date" format:"date-time"`
	Users     []PayrollUser `json:"users"`
}

type PayrollUser struct {
	UserID   uuid.UUID        `json:"user_id" format:"uuid"`
	Dates    []DaySummary     `json:"dates"`
	Sessions []PayrollSession `json:"sessions"`
}

type PayrollSession struct {
	ClientName  string    `json:"client_name"`
	ProjectName string    `json:"project_name"`
	TaskName    string    `json:"task_name"`
	StartTime   time.Time `json:"start_time" format:"date-time"`
	EndTime     time.Time `json:"end_time" format:"date-time"`
	Duration    float64   `json:"duration"`
	IsBillable  bool      `json:"is_billable"`
	Description string    `json:"description,omitempty"`
}

// DailyReport returns the summary for one UTC day (formatted 2006-01-02).
func (c *Client) DailyReport(ctx context.Context, user string, date string) (DailyReport, error) {
	res, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/users/%s/reports/daily", user), nil,
		WithQueryParam("date", date))
	if err != nil {
		return DailyReport{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return DailyReport{}, ReadBodyAsError(res)
	}
	var report DailyReport
	return report, json.NewDecoder(res.Body).Decode(&report)
}

// WeeklyReport returns per-day summaries for the seven days starting at
// start (formatted 2006-01-02).
func (c *Client) WeeklyReport(ctx context.Context, user string, start string) (WeeklyReport, error) {
	res, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/users/%s/reports/weekly", user), nil,
		WithQueryParam("start_date", start))
	if err != nil {
		return WeeklyReport{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return WeeklyReport{}, ReadBodyAsError(res)
	}
	var report WeeklyReport
	return report, json.NewDecoder(res.Body).Decode(&report)
}

// MonthlyReport returns per-day and per-project summaries for a calendar
// month (formatted 2006-01).
func (c *Client) MonthlyReport(ctx context.Context, user string, month string) (MonthlyReport, error) {
	res, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/users/%s/reports/monthly", user), nil,
		WithQueryParam("month", month))
	if err != nil {
		return MonthlyReport{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return MonthlyReport{}, ReadBodyAsError(res)
	}
	var report MonthlyReport
	return report, json.NewDecoder(res.Body).Decode(&report)
}

// PayrollExport returns the payroll projection for an inclusive UTC date
// range (formatted 2006-01-02). Requires an admin session.
func (c *Client) PayrollExport(ctx context.Context, start, end string) (PayrollExport, error) {
	res, err := c.Request(ctx, http.MethodGet, "/api/v1/payroll/export", nil,
		WithQueryParam("start_date", start),
		WithQueryParam("end_date", end),
	)
	if err != nil {
		return PayrollExport{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return PayrollExport{}, ReadBodyAsError(res)
	}
	var export PayrollExport
	return export, json.NewDecoder(res.Body).Decode(&export)
}
