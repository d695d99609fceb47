package noise

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	wildcard "github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/google/uuid"

	"github.com/btnalit/routeros-aiops/internal/models"
)

// AddWindow registers a maintenance window.
func (f *Filter) AddWindow(w MaintenanceWindow) (*MaintenanceWindow, error) {
	if err := validateWindow(&w); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	w.ID = uuid.NewString()
	w.CreatedAt = models.NewMillis(f.now())
	f.windows = append(f.windows, w)
	if err := f.persistWindowsLocked(); err != nil {
		f.windows = f.windows[:len(f.windows)-1]
		return nil, err
	}

	f.auditLog.Action("maintenance_create", "user", w.ID, w.Name)
	return &w, nil
}

// UpdateWindow replaces a window, preserving id and creation time.
func (f *Filter) UpdateWindow(id string, w MaintenanceWindow) (*MaintenanceWindow, error) {
	if err := validateWindow(&w); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i, existing := range f.windows {
		if existing.ID != id {
			continue
		}
		w.ID = id
		w.CreatedAt = existing.CreatedAt
		previous := f.windows[i]
		f.windows[i] = w
		if err := f.persistWindowsLocked(); err != nil {
			f.windows[i] = previous
			return nil, err
		}
		f.auditLog.Action("maintenance_update", "user", id, w.Name)
		return &w, nil
	}
	return nil, models.E(models.KindNotFound, "maintenance window %s not found", id)
}

// DeleteWindow removes a window by id.
func (f *Filter) DeleteWindow(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, w := range f.windows {
		if w.ID != id {
			continue
		}
		f.windows = append(f.windows[:i], f.windows[i+1:]...)
		if err := f.persistWindowsLocked(); err != nil {
			return err
		}
		f.auditLog.Action("maintenance_delete", "user", id, w.Name)
		return nil
	}
	return models.E(models.KindNotFound, "maintenance window %s not found", id)
}

// ListWindows returns the registered windows.
func (f *Filter) ListWindows() []MaintenanceWindow {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]MaintenanceWindow, len(f.windows))
	copy(out, f.windows)
	return out
}

func validateWindow(w *MaintenanceWindow) error {
	if w.Name == "" {
		return models.E(models.KindValidation, "maintenance window requires a name")
	}
	if w.StartTime.IsZero() || w.EndTime.IsZero() {
		return models.E(models.KindValidation, "maintenance window requires start and end time")
	}
	if w.EndTime.Before(w.StartTime.Time) {
		return models.E(models.KindValidation, "maintenance window ends before it starts")
	}
	if w.Recurring != nil {
		switch w.Recurring.Type {
		case RecurDaily, RecurWeekly, RecurMonthly:
		default:
			return models.E(models.KindValidation, "invalid recurrence type %q", w.Recurring.Type)
		}
	}
	return nil
}

func (f *Filter) checkMaintenance(event *models.UnifiedEvent) Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	resources := eventResources(event)
	for _, w := range f.windows {
		if !windowActive(w, now) {
			continue
		}
		if !windowCoversResources(w, resources) {
			continue
		}
		return Result{
			Filtered: true,
			Reason:   ReasonMaintenance,
			Details:  fmt.Sprintf("maintenance window %q active", w.Name),
		}
	}
	return Result{}
}

// windowActive reports whether the window covers now, either by its basic
// range or by its recurring schedule applied to the window's time of day.
func windowActive(w MaintenanceWindow, now time.Time) bool {
	if !now.Before(w.StartTime.Time) && !now.After(w.EndTime.Time) {
		return true
	}
	if w.Recurring == nil {
		return false
	}

	switch w.Recurring.Type {
	case RecurDaily:
	case RecurWeekly:
		if !containsInt(w.Recurring.DayOfWeek, int(now.Weekday())) {
			return false
		}
	case RecurMonthly:
		if !containsInt(w.Recurring.DayOfMonth, now.Day()) {
			return false
		}
	default:
		return false
	}

	start := minuteOfDay(w.StartTime.Time)
	end := minuteOfDay(w.EndTime.Time)
	cur := minuteOfDay(now)
	if start <= end {
		return cur >= start && cur <= end
	}
	// Window wraps past midnight.
	return cur >= start || cur <= end
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func containsInt(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// windowCoversResources matches the window's resource patterns against the
// event's derived resources. An empty pattern list matches everything.
func windowCoversResources(w MaintenanceWindow, resources []string) bool {
	if len(w.Resources) == 0 {
		return true
	}
	for _, pattern := range w.Resources {
		for _, resource := range resources {
			if wildcard.Match(pattern, resource) {
				return true
			}
		}
	}
	return false
}

// eventResources derives the set of identifiers a maintenance window can be
// matched against: category, interface name, hostname, ip, and metric.
func eventResources(event *models.UnifiedEvent) []string {
	var out []string
	add := func(s string) {
		if s != "" {
			out = append(out, s)
		}
	}

	add(event.Category)
	add(eventInterface(event))
	add(event.Metadata["hostname"])
	if event.DeviceInfo != nil {
		add(event.DeviceInfo.Hostname)
		add(event.DeviceInfo.IP)
	}
	if event.AlertRuleInfo != nil {
		add(string(event.AlertRuleInfo.Metric))
	}
	return out
}

var ifaceNameRe = regexp.MustCompile(`\b(ether\d+|wlan\d+|sfp[\w-]*\d*|bridge[\w-]*|vlan\d+|lte\d*|pppoe-out\d*)\b`)

func eventInterface(event *models.UnifiedEvent) string {
	if name := event.Metadata["interface"]; name != "" {
		return name
	}
	return ifaceNameRe.FindString(event.Message)
}

func isStateChange(message string) bool {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "link up") || strings.Contains(lower, "link down") {
		return true
	}
	if !strings.Contains(lower, "interface") {
		return false
	}
	return strings.HasSuffix(lower, " up") || strings.HasSuffix(lower, " down") ||
		strings.Contains(lower, " up ") || strings.Contains(lower, " down ")
}
