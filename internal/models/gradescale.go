package models

import "strings"

// GradePolicy is the explicit, versionable letter-grade policy. It is
// assembled from configuration so scale or GPA-exclusion changes never
// touch transition logic.
type GradePolicy struct {
	scale       map[string]float64
	failing     map[string]struct{}
	gpaExcluded map[string]struct{}
	incomplete  string
	withdrawal  string
}

// NewGradePolicy builds a policy from a letter→points scale plus the
// status-derivation and GPA-exclusion rule sets.
func NewGradePolicy(scale map[string]float64, failing []string, incomplete, withdrawal string, gpaExcluded []string) *GradePolicy {
	p := &GradePolicy{
		scale:       make(map[string]float64, len(scale)),
		failing:     make(map[string]struct{}, len(failing)),
		gpaExcluded: make(map[string]struct{}, len(gpaExcluded)),
		incomplete:  normalizeGrade(incomplete),
		withdrawal:  normalizeGrade(withdrawal),
	}
	for code, points := range scale {
		p.scale[normalizeGrade(code)] = points
	}
	for _, code := range failing {
		p.failing[normalizeGrade(code)] = struct{}{}
	}
	for _, code := range gpaExcluded {
		p.gpaExcluded[normalizeGrade(code)] = struct{}{}
	}
	return p
}

// Valid reports whether the letter code is part of the closed scale.
func (p *GradePolicy) Valid(code string) bool {
	_, ok := p.scale[normalizeGrade(code)]
	return ok
}

// Points returns the grade points for a letter code.
func (p *GradePolicy) Points(code string) (float64, bool) {
	points, ok := p.scale[normalizeGrade(code)]
	return points, ok
}

// CountsTowardGPA is explicit policy, not inferred from zero points:
// W and I both carry 0.0 yet are excluded, unlike F.
func (p *GradePolicy) CountsTowardGPA(code string) bool {
	_, excluded := p.gpaExcluded[normalizeGrade(code)]
	return !excluded
}

// Withdrawal returns the letter recorded on withdrawal.
func (p *GradePolicy) Withdrawal() string {
	return p.withdrawal
}

// TerminalStatus derives the finalized status for a letter grade.
// Withdrawal codes return false: those records are already terminal and
// never part of a finalize batch.
func (p *GradePolicy) TerminalStatus(code string) (EnrollmentStatus, bool) {
	normalized := normalizeGrade(code)
	if normalized == p.withdrawal {
		return "", false
	}
	if _, ok := p.failing[normalized]; ok {
		return EnrollmentStatusFailed, true
	}
	if normalized == p.incomplete {
		return EnrollmentStatusIncomplete, true
	}
	return EnrollmentStatusCompleted, true
}

func normalizeGrade(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
