package briefings

import (
	"math"
	"time"
	"unicode/utf8"

	"github.com/jimdaga/mediecho/internal/models"
)

const (
	highlightIntensity = 8
	highlightTextLimit = 100
	maxHighlights      = 20
	highIntensityTrend = 7.0
)

// Trend observations
const (
	TrendHighSymptoms  = "High symptom activity this week"
	TrendMoreNegative  = "More negative entries than positive"
	TrendHighIntensity = "High average intensity - consider consulting a healthcare provider"
)

// Highlight is a notable entry surfaced in a brief
type Highlight struct {
	Date      time.Time      `json:"date"`
	Type      models.LogType `json:"type"`
	Text      string         `json:"text"`
	Tone      models.Tone    `json:"tone,omitempty"`
	Intensity *int           `json:"intensity,omitempty"`
}

// Summary is the aggregate statistics computed from a set of log entries
type Summary struct {
	TotalLogs    int                    `json:"totalLogs"`
	ByType       map[models.LogType]int `json:"byType"`
	ByTone       map[models.Tone]int    `json:"byTone"`
	AvgIntensity float64                `json:"avgIntensity"`
	Tags         map[string]int         `json:"tags"`
	Highlights   []Highlight            `json:"highlights"`
	Trends       []string               `json:"trends"`
}

// Summarize computes the brief statistics for entries, which are expected in
// ascending creation order. Highlights keep that order.
func Summarize(entries []models.LogEntry) Summary {
	s := Summary{
		TotalLogs:  len(entries),
		ByType:     make(map[models.LogType]int),
		ByTone:     make(map[models.Tone]int),
		Tags:       make(map[string]int),
		Highlights: []Highlight{},
		Trends:     []string{},
	}

	intensitySum, intensityCount := 0, 0
	for i := range entries {
		e := &entries[i]
		s.ByType[e.Type]++
		if e.Tone != "" {
			s.ByTone[e.Tone]++
		}

		meta := e.Meta.Data()
		for _, tag := range meta.Tags {
			s.Tags[tag]++
		}

		intensity, hasIntensity := e.Intensity()
		if hasIntensity {
			intensitySum += intensity
			intensityCount++
		}

		if (hasIntensity && intensity >= highlightIntensity) || e.Tone == models.ToneUrgent {
			if len(s.Highlights) < maxHighlights {
				s.Highlights = append(s.Highlights, Highlight{
					Date:      e.CreatedAt,
					Type:      e.Type,
					Text:      truncate(e.Text, highlightTextLimit),
					Tone:      e.Tone,
					Intensity: meta.Intensity,
				})
			}
		}
	}

	if intensityCount > 0 {
		avg := float64(intensitySum) / float64(intensityCount)
		s.AvgIntensity = math.Round(avg*10) / 10
	}

	if s.TotalLogs > 0 && s.ByType[models.LogTypeSymptom]*2 > s.TotalLogs {
		s.Trends = append(s.Trends, TrendHighSymptoms)
	}
	if s.ByTone[models.ToneNegative] > s.ByTone[models.TonePositive] {
		s.Trends = append(s.Trends, TrendMoreNegative)
	}
	if s.AvgIntensity >= highIntensityTrend {
		s.Trends = append(s.Trends, TrendHighIntensity)
	}

	return s
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
