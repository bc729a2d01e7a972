package domain

// Result ties an analysis payload back to a resume. Created exactly once per
// resume, never mutated afterwards.
type Result struct {
	ResumeID string    `json:"resume_id"`
	Analysis *Analysis `json:"analysis"`
}

// Analysis is the structured payload returned by the scoring adapter.
type Analysis struct {
	OverallScore        int                  `json:"overall_score"`
	ComponentScores     ComponentScores      `json:"component_scores"`
	MatchedRequirements []MatchedRequirement `json:"matched_requirements"`
	MissingRequirements []string             `json:"missing_requirements"`
	Concerns            []string             `json:"concerns"`
	Recommendations     Recommendations      `json:"recommendations"`
	Confidence          int                  `json:"confidence"`
}

type ComponentScores struct {
	SkillsMatch        int `json:"skills_match"`
	ExperienceFit      int `json:"experience_fit"`
	EducationMatch     int `json:"education_match"`
	SemanticSimilarity int `json:"semantic_similarity"`
	Penalties          int `json:"penalties"`
}

type MatchedRequirement struct {
	JDText          string   `json:"jd_text"`
	ResumeSnippets  []string `json:"resume_snippets"`
	SimilarityScore float64  `json:"similarity_score"`
}

type Recommendations struct {
	Talent    []string `json:"talent"`
	Recruiter []string `json:"recruiter"`
}
