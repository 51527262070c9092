package service

import "invite_mall/internal/model"

type RiskClassifier interface {
	Classify(marks []model.RiskMark) model.RiskAssessment
}

// RuleCountClassifier grades a task by how many distinct rules flagged it:
// two or more is HIGH, one is MEDIUM, none is LOW.
type RuleCountClassifier struct{}

func (RuleCountClassifier) Classify(marks []model.RiskMark) model.RiskAssessment {
	seen := make(map[string]struct{}, len(marks))
	reasons := make([]string, 0, len(marks))
	for _, m := range marks {
		if _, ok := seen[m.Rule]; ok {
			continue
		}
		seen[m.Rule] = struct{}{}
		reasons = append(reasons, m.Rule)
	}

	level := model.RiskLow
	switch {
	case len(reasons) >= 2:
		level = model.RiskHigh
	case len(reasons) == 1:
		level = model.RiskMedium
	}

	return model.RiskAssessment{Level: level, Reasons: reasons}
}
