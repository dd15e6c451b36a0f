package appstate

import (
	"sort"
	"time"

	"github.com/echocoach/echo/internal/coach"
)

const persistVersion = 1

type PersistedUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Bio   string `json:"bio,omitempty"`
}

type UnlockedAchievement struct {
	ID         AchievementID `json:"id"`
	UnlockedAt time.Time     `json:"unlockedAt"`
}

// Persisted is the subset of State written to storage. The avatar is never persisted and only
// unlocked achievements are kept.
type Persisted struct {
	Version      int                   `json:"version"`
	User         *PersistedUser        `json:"user"`
	Token        string                `json:"token,omitempty"`
	Settings     Settings              `json:"settings"`
	Stats        Stats                 `json:"userStats"`
	Achievements []UnlockedAchievement `json:"achievements"`
	Sessions     []coach.SessionRecord `json:"sessions"`
	PracticeDays []string              `json:"practiceDays,omitempty"`
}

func (s *State) Persisted() Persisted {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Persisted{
		Version:      persistVersion,
		Token:        s.token,
		Settings:     s.settings,
		Stats:        s.stats,
		Achievements: make([]UnlockedAchievement, 0, len(s.unlocked)),
		Sessions:     make([]coach.SessionRecord, 0, len(s.sessions)),
		PracticeDays: append([]string(nil), s.practiceDays...),
	}
	if s.user != nil {
		out.User = &PersistedUser{ID: s.user.ID, Email: s.user.Email, Name: s.user.Name, Bio: s.user.Bio}
	}
	for id, at := range s.unlocked {
		out.Achievements = append(out.Achievements, UnlockedAchievement{ID: id, UnlockedAt: at})
	}
	sort.Slice(out.Achievements, func(i, j int) bool { return out.Achievements[i].ID < out.Achievements[j].ID })
	for _, rec := range s.sessions {
		rec.Transcript = coach.TruncateTranscript(rec.Transcript)
		out.Sessions = append(out.Sessions, rec)
	}
	return out
}

// Restore rebuilds a State from its persisted form. Unknown achievement ids are dropped.
func Restore(p Persisted) *State {
	s := New()
	if p.User != nil {
		s.user = &User{ID: p.User.ID, Email: p.User.Email, Name: p.User.Name, Bio: p.User.Bio}
	}
	s.token = p.Token
	if p.Settings != (Settings{}) {
		s.settings = p.Settings
	}
	s.stats = p.Stats
	if s.stats.WeeklyGoal <= 0 {
		s.stats.WeeklyGoal = s.settings.WeeklyGoal
	}
	for _, a := range p.Achievements {
		if _, ok := LookupAchievement(a.ID); ok {
			s.unlocked[a.ID] = a.UnlockedAt
		}
	}
	s.sessions = append([]coach.SessionRecord(nil), p.Sessions...)
	if len(s.sessions) > maxRetainedSessions {
		s.sessions = s.sessions[len(s.sessions)-maxRetainedSessions:]
	}
	s.practiceDays = append([]string(nil), p.PracticeDays...)
	return s
}
