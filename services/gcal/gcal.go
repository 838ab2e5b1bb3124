// Package gcal implements the calendar collaborator on Google Calendar.
package gcal

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/scttfrdmn/toolplan/tools/builtin"
)

// PrimaryCalendar is the calendar events are written to by default.
const PrimaryCalendar = "primary"

// ServiceFunc returns a Calendar API client authorized for userID.
type ServiceFunc func(ctx context.Context, userID string) (*calendar.Service, error)

// Calendar writes events through the Google Calendar API.
type Calendar struct {
	service    ServiceFunc
	calendarID string
}

var _ builtin.Calendar = (*Calendar)(nil)

// New creates a Calendar that uses one set of credentials for every user,
// e.g. option.WithCredentialsFile or option.WithTokenSource.
func New(ctx context.Context, opts ...option.ClientOption) (*Calendar, error) {
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return NewPerUser(func(context.Context, string) (*calendar.Service, error) {
		return svc, nil
	}), nil
}

// NewPerUser creates a Calendar that builds a client per user, for
// deployments that store an OAuth token per user.
func NewPerUser(fn ServiceFunc) *Calendar {
	return &Calendar{service: fn, calendarID: PrimaryCalendar}
}

// WithCalendarID returns a copy writing to calendarID.
func (c *Calendar) WithCalendarID(calendarID string) *Calendar {
	cp := *c
	cp.calendarID = calendarID
	return &cp
}

// CreateEvent inserts ev. Start and end carry the zone of ev.Start.
func (c *Calendar) CreateEvent(ctx context.Context, userID string, ev builtin.Event) (*builtin.Event, error) {
	svc, err := c.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	zone := ev.Start.Location().String()
	created, err := svc.Events.Insert(c.calendarID, &calendar.Event{
		Summary: ev.Title,
		Start:   &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: zone},
		End:     &calendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: zone},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar insert: %w", err)
	}

	out := ev
	out.ID = created.Id
	out.Link = created.HtmlLink
	return &out, nil
}

// DeleteEvent removes an event.
func (c *Calendar) DeleteEvent(ctx context.Context, userID, eventID string) error {
	svc, err := c.service(ctx, userID)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(c.calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("calendar delete: %w", err)
	}
	return nil
}
