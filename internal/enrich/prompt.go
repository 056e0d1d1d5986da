package enrich

import (
	"strings"

	"github.com/pbaille/cvvault/internal/domain"
)

// Fallback texts written in place of a generated reflection.
const (
	ExperienceNoCredential = "AI reflection unavailable: API key not detected in environment."
	ExperienceFailed       = "The AI vault is currently busy. Please try reflecting again in a moment."
	ExperienceEmpty        = "Reflection generated but empty."

	EducationNoCredential = "Academic insight unavailable without API key."
	EducationFailed       = "Could not analyze academic profile at this time."
	EducationEmpty        = "Insight generated but empty."

	UnknownEntry = "Reflection unavailable for this entry."
)

// Outcome labels how a Reflect call resolved.
type Outcome string

const (
	OutcomeGenerated    Outcome = "generated"
	OutcomeNoCredential Outcome = "fallback_no_credential"
	OutcomeFailed       Outcome = "fallback_error"
	OutcomeEmpty        Outcome = "fallback_empty"
)

func fallback(kind domain.Kind, o Outcome) string {
	switch kind {
	case domain.KindExperience:
		switch o {
		case OutcomeNoCredential:
			return ExperienceNoCredential
		case OutcomeEmpty:
			return ExperienceEmpty
		}
		return ExperienceFailed
	case domain.KindEducation:
		switch o {
		case OutcomeNoCredential:
			return EducationNoCredential
		case OutcomeEmpty:
			return EducationEmpty
		}
		return EducationFailed
	}
	return UnknownEntry
}

func experiencePrompt(e domain.Experience, excerpt string) string {
	var sb strings.Builder

	sb.WriteString("You are a high-end University Admissions Consultant. ")
	sb.WriteString("Create a sophisticated 2-sentence reflection for a personal statement based on this experience:\n")
	sb.WriteString("Title: ")
	sb.WriteString(e.Title)
	sb.WriteString("\nChallenge faced: ")
	sb.WriteString(e.Challenge)
	sb.WriteString("\nLearning outcomes: ")
	sb.WriteString(e.Learning)

	if excerpt != "" {
		sb.WriteString("\n\nExcerpt from the linked material (context only, do not quote):\n")
		sb.WriteString(excerpt)
	}

	sb.WriteString("\n\nReturn only the reflection text.")
	return sb.String()
}

func educationPrompt(e domain.Education) string {
	var sb strings.Builder

	sb.WriteString("As an admissions expert, write a 1-sentence punchy academic insight ")
	sb.WriteString("for a personal statement about this student's background:\n")
	sb.WriteString("Institution: ")
	sb.WriteString(e.School)
	sb.WriteString("\nQualification: ")
	sb.WriteString(e.Qualification)
	sb.WriteString("\nSubjects: ")
	sb.WriteString(e.Subjects)

	sb.WriteString("\n\nReturn only the insight text.")
	return sb.String()
}
