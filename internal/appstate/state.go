package appstate

import (
	"sort"
	"sync"
	"time"

	"github.com/echocoach/echo/internal/coach"
)

const (
	maxRetainedSessions = 10
	defaultWeeklyGoal   = 5
	weekWindow          = 7 * 24 * time.Hour
	dayLayout           = "2006-01-02"
	practiceDayLimit    = 30
)

type User struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Bio    string `json:"bio,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type Settings struct {
	EnableCamera       bool `json:"enableCamera"`
	EnableMicrophone   bool `json:"enableMicrophone"`
	TargetPace         int  `json:"targetPace"`
	DailyGoal          int  `json:"dailyGoal"`
	WeeklyGoal         int  `json:"weeklyGoal"`
	EmailNotifications bool `json:"emailNotifications"`
	SoundEffects       bool `json:"soundEffects"`
}

func DefaultSettings() Settings {
	return Settings{
		EnableCamera:       true,
		EnableMicrophone:   true,
		TargetPace:         150,
		DailyGoal:          1,
		WeeklyGoal:         defaultWeeklyGoal,
		EmailNotifications: true,
		SoundEffects:       true,
	}
}

// SettingsPatch updates only the non-nil fields.
type SettingsPatch struct {
	EnableCamera       *bool `json:"enableCamera,omitempty"`
	EnableMicrophone   *bool `json:"enableMicrophone,omitempty"`
	TargetPace         *int  `json:"targetPace,omitempty"`
	DailyGoal          *int  `json:"dailyGoal,omitempty"`
	WeeklyGoal         *int  `json:"weeklyGoal,omitempty"`
	EmailNotifications *bool `json:"emailNotifications,omitempty"`
	SoundEffects       *bool `json:"soundEffects,omitempty"`
}

type Stats struct {
	TotalSessions     int `json:"totalSessions"`
	TotalPracticeTime int `json:"totalPracticeTime"`
	AverageScore      int `json:"averageScore"`
	Improvement       int `json:"improvement"`
	WeeklyGoal        int `json:"weeklyGoal"`
	WeeklyProgress    int `json:"weeklyProgress"`
	ScoreSum          int `json:"scoreSum"`
}

func defaultStats() Stats {
	return Stats{WeeklyGoal: defaultWeeklyGoal}
}

// State is the client-side application state: auth, settings, stats, achievements and the
// most recent sessions. Mutations go through methods; Persisted is the serialization boundary.
type State struct {
	mu sync.RWMutex

	user         *User
	token        string
	settings     Settings
	stats        Stats
	unlocked     map[AchievementID]time.Time
	sessions     []coach.SessionRecord
	practiceDays []string
}

func New() *State {
	return &State{
		settings: DefaultSettings(),
		stats:    defaultStats(),
		unlocked: make(map[AchievementID]time.Time),
	}
}

func (s *State) SetAuth(user User, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user
	s.user = &u
	s.token = token
}

func (s *State) UpdateUser(user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user
	s.user = &u
}

// Logout clears credentials, sessions and stats. Settings and unlocked achievements survive.
func (s *State) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.token = ""
	s.sessions = nil
	s.stats = defaultStats()
	s.stats.WeeklyGoal = s.settings.WeeklyGoal
}

func (s *State) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

func (s *State) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *State) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *State) UpdateSettings(p SettingsPatch) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.EnableCamera != nil {
		s.settings.EnableCamera = *p.EnableCamera
	}
	if p.EnableMicrophone != nil {
		s.settings.EnableMicrophone = *p.EnableMicrophone
	}
	if p.TargetPace != nil && *p.TargetPace > 0 {
		s.settings.TargetPace = *p.TargetPace
	}
	if p.DailyGoal != nil && *p.DailyGoal > 0 {
		s.settings.DailyGoal = *p.DailyGoal
	}
	if p.WeeklyGoal != nil && *p.WeeklyGoal > 0 {
		s.settings.WeeklyGoal = *p.WeeklyGoal
		s.stats.WeeklyGoal = *p.WeeklyGoal
	}
	if p.EmailNotifications != nil {
		s.settings.EmailNotifications = *p.EmailNotifications
	}
	if p.SoundEffects != nil {
		s.settings.SoundEffects = *p.SoundEffects
	}
	return s.settings
}

func (s *State) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Sessions returns the retained sessions, oldest first.
func (s *State) Sessions() []coach.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]coach.SessionRecord(nil), s.sessions...)
}

// AddSession retains a saved record, updates stats and returns the achievements it unlocked.
func (s *State) AddSession(rec coach.SessionRecord) []AchievementID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var previous *coach.SessionRecord
	if n := len(s.sessions); n > 0 {
		p := s.sessions[n-1]
		previous = &p
	}

	s.sessions = append(s.sessions, rec)
	if len(s.sessions) > maxRetainedSessions {
		s.sessions = append([]coach.SessionRecord(nil), s.sessions[len(s.sessions)-maxRetainedSessions:]...)
	}
	s.notePracticeDay(rec.Date)

	s.stats.TotalSessions++
	s.stats.TotalPracticeTime += rec.Duration
	s.stats.ScoreSum += rec.OverallScore
	s.stats.AverageScore = roundDiv(s.stats.ScoreSum, s.stats.TotalSessions)
	s.stats.Improvement = 0
	if previous != nil && rec.OverallScore > previous.OverallScore {
		s.stats.Improvement = rec.OverallScore - previous.OverallScore
	}
	s.stats.WeeklyProgress = s.weeklyProgressLocked(rec.Date)

	var unlocked []AchievementID
	for _, a := range Catalogue {
		if _, ok := s.unlocked[a.ID]; ok {
			continue
		}
		if a.earned(progress{stats: s.stats, record: rec, practiceDays: s.practiceDays}) {
			s.unlocked[a.ID] = rec.Date
			unlocked = append(unlocked, a.ID)
		}
	}
	return unlocked
}

func (s *State) weeklyProgressLocked(now time.Time) int {
	count := 0
	for _, r := range s.sessions {
		if now.Sub(r.Date) < weekWindow {
			count++
		}
	}
	return count
}

func (s *State) notePracticeDay(at time.Time) {
	day := at.Format(dayLayout)
	for _, d := range s.practiceDays {
		if d == day {
			return
		}
	}
	s.practiceDays = append(s.practiceDays, day)
	sort.Strings(s.practiceDays)
	if len(s.practiceDays) > practiceDayLimit {
		s.practiceDays = s.practiceDays[len(s.practiceDays)-practiceDayLimit:]
	}
}

// Unlock marks an achievement unlocked at the given time. It reports false if it already was.
func (s *State) Unlock(id AchievementID, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.unlocked[id]; ok {
		return false
	}
	s.unlocked[id] = at
	return true
}

// Achievements lists the catalogue with unlock times filled in.
func (s *State) Achievements() []AchievementStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AchievementStatus, 0, len(Catalogue))
	for _, a := range Catalogue {
		status := AchievementStatus{Achievement: a}
		if at, ok := s.unlocked[a.ID]; ok {
			t := at
			status.UnlockedAt = &t
		}
		out = append(out, status)
	}
	return out
}

func roundDiv(sum, n int) int {
	if n == 0 {
		return 0
	}
	return (2*sum + n) / (2 * n)
}
