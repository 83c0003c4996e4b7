// internal/notification/digest.go
package notification

import (
	"fmt"
	"strings"
	"unicode"

	"resume-matcher/internal/models"
)

// Subject is the digest subject line for an applicant. Control characters in
// the id are replaced so the subject stays on one line.
func Subject(applicantID string) string {
	return "New Job Matches for " + strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, applicantID)
}

func digestLines(matches []models.MatchSummary) string {
	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		lines = append(lines, fmt.Sprintf("- %s (%s) - Similarity: %.4f", m.Title, m.Location, m.SimilarityScore))
	}
	return strings.Join(lines, "\n")
}

// EmailBody renders the digest addressed to the applicant.
func EmailBody(matches []models.MatchSummary) string {
	var b strings.Builder
	b.WriteString("Dear User,\n\n")
	b.WriteString("The following job matches were found based on your resume:\n")
	b.WriteString(digestLines(matches))
	b.WriteString("\n\nBest,\nResume Matcher Team")
	return b.String()
}

// ShortMessage renders the compact digest used for non-email topic subscribers.
func ShortMessage(matches []models.MatchSummary) string {
	return "New job matches found:\n" + digestLines(matches)
}
