package core

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

const (
	Apprentice Degree = "apprentice"
	Fellow     Degree = "fellow"
	Master     Degree = "master"

	Ordinary       SessionType = "ordinary"
	Administrative SessionType = "administrative"
	White          SessionType = "white"
	Grand          SessionType = "grand"
)

type (
	// Degree is one of the three ranks a member can hold.
	Degree string

	SessionType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Relative struct {
		Name         string
		Relationship string
		BirthDate    Date
	}

	Member struct {
		ID             int64
		Name           string
		Email          string
		Degree         Degree
		Profession     string
		BirthDate      Date
		Phone          string
		HigherDegree   *int // optional higher-degree number
		InitiationDate *Date
		Relatives      []Relative
		Active         bool
		CreatedAt      time.Time
	}

	Session struct {
		ID         int64
		Date       Date
		Time       string // HH:MM
		Degree     Degree
		Agenda     string
		MinutesURL string
		Type       SessionType
	}

	// AttendanceRow is one raw presence flag for a (session, member) pair.
	AttendanceRow struct {
		ID        int64
		SessionID int64
		MemberID  int64
		Present   bool
		CreatedAt time.Time
	}
)

var (
	ErrInvalidDay    = errors.New("invalid day")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidAmount = errors.New("invalid amount")

	sessionTimeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// String renders the date as YYYY-MM-DD, or an empty string when unset.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", s)}
	}
	return Date{Time: t}, nil
}

// DaysUntil returns the number of whole calendar days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Sub(d.Time).Hours() / 24)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (g Degree) Valid() bool {
	switch g {
	case Apprentice, Fellow, Master:
		return true
	}
	return false
}

func (t SessionType) Valid() bool {
	switch t {
	case Ordinary, Administrative, White, Grand:
		return true
	}
	return false
}

func (m Member) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return &ValidationError{Field: "name", Reason: "cannot be empty"}
	}
	if len(m.Name) > 200 {
		return &ValidationError{Field: "name", Reason: "too long (max 200 characters)"}
	}
	if _, err := mail.ParseAddress(m.Email); err != nil {
		return &ValidationError{Field: "email", Reason: "not a valid address"}
	}
	if !m.Degree.Valid() {
		return &ValidationError{Field: "degree", Reason: fmt.Sprintf("unknown degree %q", m.Degree)}
	}
	if !m.BirthDate.IsZero() {
		if err := m.BirthDate.Validate(); err != nil {
			return &ValidationError{Field: "birth_date", Reason: err.Error()}
		}
	}
	if m.HigherDegree != nil && (*m.HigherDegree < 4 || *m.HigherDegree > 33) {
		return &ValidationError{Field: "higher_degree", Reason: "must be between 4 and 33"}
	}
	if m.InitiationDate != nil && !m.BirthDate.IsZero() && m.InitiationDate.Before(m.BirthDate.Time) {
		return &ValidationError{Field: "initiation_date", Reason: "cannot precede birth date"}
	}
	for i, r := range m.Relatives {
		if strings.TrimSpace(r.Name) == "" {
			return &ValidationError{Field: fmt.Sprintf("relatives[%d].name", i), Reason: "cannot be empty"}
		}
		if strings.TrimSpace(r.Relationship) == "" {
			return &ValidationError{Field: fmt.Sprintf("relatives[%d].relationship", i), Reason: "cannot be empty"}
		}
	}
	return nil
}

func (s Session) Validate() error {
	if err := s.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Reason: err.Error()}
	}
	if !sessionTimeRe.MatchString(s.Time) {
		return &ValidationError{Field: "time", Reason: "must be HH:MM"}
	}
	if !s.Degree.Valid() {
		return &ValidationError{Field: "degree", Reason: fmt.Sprintf("unknown degree %q", s.Degree)}
	}
	if !s.Type.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown session type %q", s.Type)}
	}
	if len(s.Agenda) > 2000 {
		return &ValidationError{Field: "agenda", Reason: "too long (max 2000 characters)"}
	}
	return nil
}

// ValidMonth reports whether m is in 1..12.
func ValidMonth(m int) bool {
	return m >= 1 && m <= 12
}
