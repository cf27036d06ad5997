package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calclient/internal/model"
)

func calendar(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

var feed = calendar(
	"BEGIN:VEVENT",
	"UID:standup",
	"DTSTAMP:20240101T000000Z",
	"DTSTART:20240304T090000Z",
	"DTEND:20240304T091500Z",
	"RRULE:FREQ=DAILY;COUNT=5",
	"EXDATE:20240306T090000Z",
	"SUMMARY:Standup",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:standup",
	"DTSTAMP:20240101T000000Z",
	"RECURRENCE-ID:20240307T090000Z",
	"DTSTART:20240307T100000Z",
	"DTEND:20240307T101500Z",
	"SUMMARY:Standup (late)",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:holiday",
	"DTSTAMP:20240101T000000Z",
	"DTSTART;VALUE=DATE:20240305",
	"DTEND;VALUE=DATE:20240306",
	"SUMMARY:Holiday",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:far",
	"DTSTAMP:20240101T000000Z",
	"DTSTART:20250101T090000Z",
	"DTEND:20250101T100000Z",
	"SUMMARY:Far away",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"DTSTAMP:20240101T000000Z",
	"DTSTART:20240304T120000Z",
	"SUMMARY:No uid",
	"END:VEVENT",
)

func march() ImportOptions {
	return ImportOptions{
		From:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:          time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Location:    time.UTC,
		AccessLevel: 2,
		Visibility:  model.HideDescription,
	}
}

func utc(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2024, month, day, hour, minute, 0, 0, time.UTC)
}

func TestImportExpandsRecurrence(t *testing.T) {
	res, err := Import(feed, march())
	require.NoError(t, err)
	assert.Empty(t, res.Truncated)

	var got []string
	for _, e := range res.Events {
		got = append(got, e.Start.Format("01-02 15:04")+" "+e.Name)
		assert.Equal(t, int32(2), e.AccessLevel)
		assert.Equal(t, model.HideDescription, e.Visibility)
	}
	assert.Equal(t, []string{
		"03-04 09:00 Standup",
		"03-05 00:00 Holiday",
		"03-05 09:00 Standup",
		"03-07 10:00 Standup (late)",
		"03-08 09:00 Standup",
	}, got)

	holiday := res.Events[1]
	assert.True(t, holiday.End.Equal(utc(time.March, 6, 0, 0)))
	standup := res.Events[0]
	assert.Equal(t, 15*time.Minute, standup.End.Sub(standup.Start))
}

func TestImportCapsOccurrences(t *testing.T) {
	opts := march()
	opts.MaxOccurrencesPerEvent = 2
	res, err := Import(feed, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"standup"}, res.Truncated)
	assert.Len(t, res.Events, 3)
}

func TestImportFloatingTimesUseLocation(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	body := calendar(
		"BEGIN:VEVENT",
		"UID:lunch",
		"DTSTAMP:20240101T000000Z",
		"DTSTART:20240304T120000",
		"DTEND:20240304T130000",
		"SUMMARY:Lunch",
		"END:VEVENT",
	)
	opts := march()
	opts.Location = seoul
	res, err := Import(body, opts)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.True(t, res.Events[0].Start.Equal(time.Date(2024, 3, 4, 12, 0, 0, 0, seoul)))
}

func TestImportRejectsBadInput(t *testing.T) {
	_, err := Import(nil, march())
	assert.Error(t, err)

	opts := march()
	opts.To = opts.From
	_, err = Import(feed, opts)
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	plan := int64(100)
	events := []model.Event{
		{ID: 7, Name: "Dentist", Description: "bring card", Start: utc(time.March, 4, 8, 0), End: utc(time.March, 4, 8, 30)},
		{ID: 8, Start: utc(time.March, 4, 12, 0), End: utc(time.March, 4, 13, 0)},
		{ID: model.PhantomID, Name: "Workout", Start: utc(time.March, 4, 9, 0), End: utc(time.March, 4, 10, 0), PlanID: &plan, Visibility: model.HideAll},
	}
	out := Export(events, ExportOptions{Name: "Ada", Stamp: utc(time.March, 1, 0, 0)})

	assert.Contains(t, out, "UID:event-7@calclient")
	assert.Contains(t, out, "SUMMARY:Dentist")
	assert.Contains(t, out, "SUMMARY:Busy")
	assert.Contains(t, out, "UID:plan-100-20240304@calclient")
	assert.Contains(t, out, PhantomProperty+":TRUE")
	assert.Equal(t, 1, strings.Count(out, PhantomProperty))

	// The feed reads back through Import.
	res, err := Import([]byte(out), march())
	require.NoError(t, err)
	require.Len(t, res.Events, 3)
	assert.Equal(t, "Dentist", res.Events[0].Name)
	assert.Equal(t, "bring card", res.Events[0].Description)
	assert.True(t, res.Events[1].Start.Equal(utc(time.March, 4, 9, 0)))
}

func TestReadFileAndURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.ics")
	require.NoError(t, os.WriteFile(path, feed, 0o600))
	body, err := Read(context.Background(), nil, path)
	require.NoError(t, err)
	assert.Equal(t, feed, body)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/private.ics" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(feed)
	}))
	defer srv.Close()

	body, err = Read(context.Background(), srv.Client(), srv.URL+"/private.ics")
	require.NoError(t, err)
	assert.Equal(t, feed, body)

	_, err = Read(context.Background(), srv.Client(), srv.URL+"/missing.ics?token=abc")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "token")

	_, err = Read(context.Background(), nil, "")
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/path/private.ics?token=abcd"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
