package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/jrsteele09/go-highlevel-auth/sessions"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	return t
}

func header(names ...string) table.Row {
	row := make(table.Row, 0, len(names))
	for _, n := range names {
		row = append(row, text.FgHiCyan.Sprint(n))
	}
	return row
}

func renderSessions(out io.Writer, records []sessions.Record, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(out, text.FgYellow.Sprint("No sessions stored"))
		return
	}
	t := newTable(out)
	t.AppendHeader(header("RESOURCE", "USER TYPE", "COMPANY", "LOCATION", "EXPIRES", "REFRESHABLE"))
	for _, rec := range records {
		t.AppendRow(table.Row{
			rec.ResourceID,
			rec.EffectiveUserType(),
			rec.CompanyID,
			rec.LocationID,
			expiry(rec.ExpireAt, now),
			rec.RefreshToken != "",
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "TOTAL", len(records)})
	t.Render()
}

func renderSession(out io.Writer, rec *sessions.Record, now time.Time) {
	t := newTable(out)
	t.AppendHeader(header("FIELD", "VALUE"))
	t.AppendRows([]table.Row{
		{"application", rec.ApplicationID},
		{"resource", rec.ResourceID},
		{"user type", rec.EffectiveUserType()},
		{"access token", mask(rec.AccessToken)},
		{"refresh token", mask(rec.RefreshToken)},
		{"expires in", rec.ExpiresIn},
		{"expires", expiry(rec.ExpireAt, now)},
		{"scope", rec.Scope},
		{"company", rec.CompanyID},
		{"location", rec.LocationID},
		{"user", rec.UserID},
	})

	keys := make([]string, 0, len(rec.Extra))
	for k := range rec.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.AppendRow(table.Row{"extra." + k, fmt.Sprintf("%v", rec.Extra[k])})
	}
	t.Render()
}

func expiry(at, now time.Time) string {
	if at.IsZero() {
		return "unknown"
	}
	left := at.Sub(now).Round(time.Second)
	if left <= 0 {
		return text.FgRed.Sprintf("expired %s ago", -left)
	}
	return fmt.Sprintf("in %s", left)
}

// mask keeps the first and last four characters of a secret.
func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 12 {
		return "****"
	}
	return secret[:4] + "…" + secret[len(secret)-4:]
}
