package study

// Symptom answers as recorded by the onboarding survey.
const (
	SymptomsNone   = "I do not have symptoms"
	SymptomsSkin   = "Skin symptoms"
	SymptomsJoints = "Painful or swollen joints"
	SymptomsBoth   = "Skin symptoms, Painful or swollen joints"
)

// Diagnosis answers as recorded by the onboarding survey.
const (
	DiagnosisNone      = "I do not have psoriasis"
	DiagnosisPsoriasis = "Psoriasis"
	DiagnosisArthritis = "Psoriatic Arthritis"
	DiagnosisBoth      = "Psoriasis, Psoriatic Arthritis"
)

// KnownSymptoms lists the symptom vocabulary.
func KnownSymptoms() []string {
	return []string{SymptomsNone, SymptomsSkin, SymptomsJoints, SymptomsBoth}
}

// KnownDiagnoses lists the diagnosis vocabulary.
func KnownDiagnoses() []string {
	return []string{DiagnosisNone, DiagnosisPsoriasis, DiagnosisArthritis, DiagnosisBoth}
}

// IsKnownAnswer reports whether value appears in vocabulary.
func IsKnownAnswer(vocabulary []string, value string) bool {
	for _, v := range vocabulary {
		if v == value {
			return true
		}
	}
	return false
}
