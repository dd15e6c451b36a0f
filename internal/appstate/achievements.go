package appstate

import (
	"time"

	"github.com/echocoach/echo/internal/coach"
)

type AchievementID string

const (
	AchievementFirstSession AchievementID = "first_session"
	AchievementStreak3      AchievementID = "streak_3"
	AchievementScore80      AchievementID = "score_80"
	AchievementNoFillers    AchievementID = "no_fillers"
)

const (
	streakDays         = 3
	highScoreThreshold = 80
	noFillersMinWords  = 50
)

type Achievement struct {
	ID          AchievementID `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Icon        string        `json:"icon"`

	earned func(progress) bool
}

type AchievementStatus struct {
	Achievement
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
}

type progress struct {
	stats        Stats
	record       coach.SessionRecord
	practiceDays []string
}

var Catalogue = []Achievement{
	{
		ID:          AchievementFirstSession,
		Title:       "First Steps",
		Description: "Complete your first practice session",
		Icon:        "🎯",
		earned:      func(p progress) bool { return p.stats.TotalSessions == 1 },
	},
	{
		ID:          AchievementStreak3,
		Title:       "Consistent Speaker",
		Description: "Practice 3 days in a row",
		Icon:        "🔥",
		earned: func(p progress) bool {
			return StreakEndingOn(p.practiceDays, p.record.Date) >= streakDays
		},
	},
	{
		ID:          AchievementScore80,
		Title:       "High Achiever",
		Description: "Score 80% or higher",
		Icon:        "⭐",
		earned:      func(p progress) bool { return p.record.OverallScore >= highScoreThreshold },
	},
	{
		ID:          AchievementNoFillers,
		Title:       "Smooth Talker",
		Description: "Complete a session with no filler words",
		Icon:        "💎",
		earned: func(p progress) bool {
			return p.record.Metrics.TotalFillers == 0 && p.record.WordCount > noFillersMinWords
		},
	},
}

func LookupAchievement(id AchievementID) (Achievement, bool) {
	for _, a := range Catalogue {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// StreakEndingOn counts consecutive practice days ending on the day of at.
func StreakEndingOn(days []string, at time.Time) int {
	set := make(map[string]struct{}, len(days))
	for _, d := range days {
		set[d] = struct{}{}
	}
	streak := 0
	for day := at; ; day = day.AddDate(0, 0, -1) {
		if _, ok := set[day.Format(dayLayout)]; !ok {
			return streak
		}
		streak++
	}
}
