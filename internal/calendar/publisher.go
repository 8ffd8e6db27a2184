package calendar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

// Publisher writes dose slots to a CalDAV calendar, one object per slot.
type Publisher struct {
	client *caldav.Client

	mu           sync.Mutex
	calendarPath string
}

// NewPublisher connects to the CalDAV endpoint. An empty calendarPath is
// resolved to the first calendar of the user's home set on first publish.
func NewPublisher(baseURL, username, password, calendarPath string) (*Publisher, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("caldav url is required")
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: username,
			password: password,
		},
		Timeout: 30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}
	return &Publisher{client: client, calendarPath: calendarPath}, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests
type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

// Publish PUTs every event of cal and returns the UIDs written. It stops at
// the first failure.
func (p *Publisher) Publish(ctx context.Context, cal *ical.Calendar) ([]string, error) {
	calendarPath, err := p.calendar(ctx)
	if err != nil {
		return nil, err
	}

	var written []string
	for uid, single := range Split(cal) {
		if _, err := p.client.PutCalendarObject(ctx, objectPath(calendarPath, uid), single); err != nil {
			return written, fmt.Errorf("put slot %s: %w", uid, err)
		}
		written = append(written, uid)
	}
	return written, nil
}

// Remove deletes the slot object with the given UID.
func (p *Publisher) Remove(ctx context.Context, uid string) error {
	calendarPath, err := p.calendar(ctx)
	if err != nil {
		return err
	}
	if err := p.client.RemoveAll(ctx, objectPath(calendarPath, uid)); err != nil {
		return fmt.Errorf("delete slot %s: %w", uid, err)
	}
	return nil
}

func (p *Publisher) calendar(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calendarPath != "" {
		return p.calendarPath, nil
	}

	principal, err := p.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := p.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find home set: %w", err)
	}
	cals, err := p.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("find calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", fmt.Errorf("no calendars in %s", homeSet)
	}

	p.calendarPath = cals[0].Path
	return p.calendarPath, nil
}

func objectPath(calendarPath, uid string) string {
	if !strings.HasSuffix(calendarPath, "/") {
		calendarPath += "/"
	}
	return calendarPath + uid + ".ics"
}
