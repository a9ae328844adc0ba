package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LogType classifies a log entry
type LogType string

// Log type constants
const (
	LogTypeSymptom LogType = "symptom"
	LogTypeFitness LogType = "fitness"
	LogTypeFood    LogType = "food"
	LogTypeMood    LogType = "mood"
	LogTypeVoice   LogType = "voice"
)

// LogTypes lists every log type in display order
var LogTypes = []LogType{LogTypeSymptom, LogTypeFitness, LogTypeFood, LogTypeMood, LogTypeVoice}

// Tone is the emotional register of a log entry
type Tone string

// Tone constants
const (
	TonePositive Tone = "positive"
	ToneNegative Tone = "negative"
	ToneNeutral  Tone = "neutral"
	ToneAnxious  Tone = "anxious"
	ToneCalm     Tone = "calm"
	ToneUrgent   Tone = "urgent"
)

// Tones lists every accepted tone
var Tones = []Tone{TonePositive, ToneNegative, ToneNeutral, ToneAnxious, ToneCalm, ToneUrgent}

// ValidLogType reports whether t is a known log type
func ValidLogType(t LogType) bool {
	for _, known := range LogTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ValidTone reports whether t is empty or a known tone
func ValidTone(t Tone) bool {
	if t == "" {
		return true
	}
	for _, known := range Tones {
		if t == known {
			return true
		}
	}
	return false
}

// LogMeta holds optional structured data attached to a log entry.
// Intensity lives here and nowhere else.
type LogMeta struct {
	Duration                *float64 `json:"duration,omitempty"`
	TranscriptionConfidence *float64 `json:"transcriptionConfidence,omitempty"`
	AISummary               string   `json:"aiSummary,omitempty"`
	Tags                    []string `json:"tags,omitempty"`
	Intensity               *int     `json:"intensity,omitempty"`
}

// LogEntry is a single user-submitted health observation
type LogEntry struct {
	gorm.Model
	UserID      uint                        `gorm:"not null;index;index:idx_log_entries_user_type,priority:1"`
	User        User                        `gorm:"constraint:OnDelete:CASCADE;"`
	Type        LogType                     `gorm:"not null;index:idx_log_entries_user_type,priority:2"`
	Text        string                      `gorm:"type:text;not null"`
	Tone        Tone                        `gorm:"not null;default:''"`
	Meta        datatypes.JSONType[LogMeta] `gorm:"type:jsonb"`
	IsEncrypted bool                        `gorm:"not null;default:false"`
}

// Intensity returns the declared intensity and whether one was declared
func (l *LogEntry) Intensity() (int, bool) {
	meta := l.Meta.Data()
	if meta.Intensity == nil {
		return 0, false
	}
	return *meta.Intensity, true
}
