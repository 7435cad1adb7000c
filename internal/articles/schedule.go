// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package articles

import (
	"time"

	"peablog/internal/models"
)

// wallClockLayouts are the local date-time forms a schedule may be typed in.
var wallClockLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ScheduleTime converts a wall-clock publish time in loc to RFC 3339. Input
// in any other form, including an RFC 3339 value, is returned unchanged.
func ScheduleTime(raw string, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range wallClockLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.Format(time.RFC3339)
		}
	}
	return raw
}

// schedule rewrites publishedAt when status is scheduled.
func schedule(status models.ArticleStatus, publishedAt *string, loc *time.Location) *string {
	if status != models.ArticleStatusScheduled || publishedAt == nil || *publishedAt == "" {
		return publishedAt
	}
	out := ScheduleTime(*publishedAt, loc)
	return &out
}
