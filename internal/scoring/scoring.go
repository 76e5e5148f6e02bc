// Package scoring converts prospect attributes into a bounded visit
// priority. Scores are deterministic: identical inputs always produce
// identical scores.
package scoring

import (
	"time"

	"fieldroute/internal/model"
)

const (
	base     = 50
	maxScore = 100
	minScore = 0

	valueCap = 30
	ageCap   = 20
)

// statusBonus maps sales status to a fixed score adjustment.
var statusBonus = map[model.ProspectStatus]int{
	model.StatusHot:       25,
	model.StatusNew:       20,
	model.StatusContacted: 15,
	model.StatusCold:      5,
	model.StatusVisited:   -10,
	model.StatusRejected:  -20,
}

// tempBonus maps temperature to a fixed score adjustment.
var tempBonus = map[model.Temperature]int{
	model.TempHot:  15,
	model.TempWarm: 5,
	model.TempCold: -5,
}

// Score computes the priority of a prospect at time now, honoring the
// enabled factors. The result is clamped to [0, 100].
func Score(p *model.Prospect, factors model.PriorityFactors, now time.Time) int {
	s := base

	if factors.Value && p.Value > 0 {
		bonus := int(p.Value / 1000)
		if bonus > valueCap {
			bonus = valueCap
		}
		s += bonus
	}

	if factors.Age && !p.CreatedAt.IsZero() {
		days := int(now.Sub(p.CreatedAt).Hours() / 24)
		if days < 0 {
			days = 0
		}
		bonus := 2 * days
		if bonus > ageCap {
			bonus = ageCap
		}
		s += bonus
	}

	s += statusBonus[p.Status]
	s += tempBonus[p.Temperature]

	if s > maxScore {
		s = maxScore
	}
	if s < minScore {
		s = minScore
	}
	return s
}
