package domain

import "time"

// NoTitle is stored when an article page carries no level-1 heading.
const NoTitle = "No title found"

// Article is a news item harvested from the seed page.
type Article struct {
	Title         string
	URL           string
	PublishedDate time.Time
	Content       string
	Source        string
	IsRelevant    bool
}

// DateWindow admits articles published on a single calendar day.
type DateWindow struct {
	Day time.Time
}

// YesterdayWindow returns the window for the day before now, read in now's location.
func YesterdayWindow(now time.Time) DateWindow {
	return DateWindow{Day: CalendarDate(now).AddDate(0, 0, -1)}
}

// Contains reports whether t falls on the window day. The date of t is read in its own offset.
func (w DateWindow) Contains(t time.Time) bool {
	return CalendarDate(t).Equal(w.Day)
}

// String formats the window day as YYYY-MM-DD.
func (w DateWindow) String() string {
	return w.Day.Format(time.DateOnly)
}

// CalendarDate drops the time of day, keeping the date as seen in t's location.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Relevant returns the articles marked relevant, preserving order.
func Relevant(articles []Article) []Article {
	out := make([]Article, 0, len(articles))
	for _, article := range articles {
		if article.IsRelevant {
			out = append(out, article)
		}
	}
	return out
}
