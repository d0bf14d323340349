package sqlite

import "github.com/felixgeelhaar/healthbuddy/internal/session"

// Ensure SQLite stores implement the session interfaces.
var (
	_ session.SessionStore = (*SessionStore)(nil)
	_ session.Recorder     = (*AnalyticsStore)(nil)
	_ session.StatsSource  = (*AnalyticsStore)(nil)
)
