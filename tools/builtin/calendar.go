package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// PastEventGrace is how far in the past an event may start and still be
// created.
const PastEventGrace = 10 * time.Minute

const displayLayout = "2006-01-02 15:04"

// Layouts accepted for timestamps without an offset.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTime parses an ISO-8601 timestamp. A timestamp without an offset is
// interpreted in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	// Offset without seconds: 2025-05-26T13:00+02:00
	if t, err := time.Parse("2006-01-02T15:04Z07:00", s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", s)
}

// CreateEvent returns the create_event tool.
func CreateEvent(cal Calendar, session Session) toolplan.Tool {
	spec := toolplan.ToolSpec{
		Name: CreateEventTool,
		Description: "Create a calendar event. Use this whenever the user asks to schedule, book or " +
			"arrange a meeting or appointment. Events can only be created in the future.",
		Parameters: []toolplan.ParamSpec{
			{Name: "title", Type: toolplan.TypeString, Required: true, Description: "Event title, e.g. \"Team meeting\""},
			{Name: "start", Type: toolplan.TypeString, Required: true, Description: "ISO-8601 start, e.g. 2025-05-26T13:00:00+09:00"},
			{Name: "end", Type: toolplan.TypeString, Required: true, Description: "ISO-8601 end, e.g. 2025-05-26T14:00:00+09:00"},
		},
	}
	return toolplan.NewFuncTool(spec, func(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
		loc := session.location()

		start, err := ParseTime(toolplan.StringParam(params, "start", ""), loc)
		if err != nil {
			return toolplan.NewToolError(fmt.Sprintf("Invalid date format: %v", err)), nil
		}
		end, err := ParseTime(toolplan.StringParam(params, "end", ""), loc)
		if err != nil {
			return toolplan.NewToolError(fmt.Sprintf("Invalid date format: %v", err)), nil
		}
		if end.Before(start) {
			return toolplan.NewToolError(fmt.Sprintf("Event end (%s) is before its start (%s).",
				end.In(loc).Format(displayLayout), start.In(loc).Format(displayLayout))), nil
		}

		now := session.now()
		if start.Before(now.Add(-PastEventGrace)) {
			return toolplan.NewToolError(fmt.Sprintf("Cannot create an event in the past (%s). The current time is %s.",
				start.In(loc).Format(displayLayout), now.Format(displayLayout))), nil
		}

		ev, err := cal.CreateEvent(ctx, session.UserID, Event{
			Title: toolplan.StringParam(params, "title", ""),
			Start: start.In(loc),
			End:   end.In(loc),
		})
		if err != nil {
			return toolplan.NewToolError(fmt.Sprintf("Failed to create event: %v", err)), nil
		}

		out := fmt.Sprintf("Event created: %s ~ %s", start.In(loc).Format(displayLayout), end.In(loc).Format("15:04"))
		if ev != nil && ev.Link != "" {
			out += " " + ev.Link
		}
		res := toolplan.NewToolResult(out)
		if ev != nil && ev.ID != "" {
			res.WithMetadata("event_id", ev.ID)
		}
		return res, nil
	})
}

// DeleteEvent returns the delete_event tool.
func DeleteEvent(cal Calendar, session Session) toolplan.Tool {
	spec := toolplan.ToolSpec{
		Name:        DeleteEventTool,
		Description: "Delete a calendar event by its event_id.",
		Parameters: []toolplan.ParamSpec{
			{Name: "event_id", Type: toolplan.TypeString, Required: true},
		},
	}
	return toolplan.NewFuncTool(spec, func(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
		id := strings.TrimSpace(toolplan.StringParam(params, "event_id", ""))
		if id == "" {
			return toolplan.NewToolError("event_id cannot be empty"), nil
		}
		if err := cal.DeleteEvent(ctx, session.UserID, id); err != nil {
			return toolplan.NewToolError(fmt.Sprintf("Failed to delete event: %v", err)), nil
		}
		return toolplan.NewToolResult("Event deleted."), nil
	})
}
