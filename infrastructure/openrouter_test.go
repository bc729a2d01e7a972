package infrastructure

import "testing"

func TestCleanJSONResponseStripsFences(t *testing.T) {
	raw := "```json\n{\"overall_score\": 75}\n```"
	cleaned := cleanJSONResponse(raw)
	if cleaned != `{"overall_score": 75}` {
		t.Fatalf("unexpected cleaned content: %q", cleaned)
	}
}

func TestCleanJSONResponseSlicesToBraces(t *testing.T) {
	raw := "Here is the analysis:\n{\"overall_score\": 60}\nHope that helps!"
	cleaned := cleanJSONResponse(raw)
	if cleaned != `{"overall_score": 60}` {
		t.Fatalf("unexpected cleaned content: %q", cleaned)
	}
}

func TestRepairTruncatedJSON(t *testing.T) {
	raw := `{"overall_score": 75, "missing_requirements": ["Kubernetes"`
	repaired := repairTruncatedJSON(raw)
	if _, err := ParseAnalysis(repaired); err != nil {
		t.Fatalf("repaired JSON should parse: %v", err)
	}
}

func TestParseAnalysisClampsScores(t *testing.T) {
	content := `{
		"overall_score": 250,
		"component_scores": {
			"skills_match": 99,
			"experience_fit": -5,
			"education_match": 8,
			"semantic_similarity": 30,
			"penalties": 2
		},
		"confidence": -10
	}`
	analysis, err := ParseAnalysis(content)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if analysis.OverallScore != 100 {
		t.Fatalf("overall score should clamp to 100, got %d", analysis.OverallScore)
	}
	if analysis.ComponentScores.SkillsMatch != 25 {
		t.Fatalf("skills match should clamp to 25, got %d", analysis.ComponentScores.SkillsMatch)
	}
	if analysis.ComponentScores.ExperienceFit != 0 {
		t.Fatalf("experience fit should clamp to 0, got %d", analysis.ComponentScores.ExperienceFit)
	}
	if analysis.Confidence != 0 {
		t.Fatalf("confidence should clamp to 0, got %d", analysis.Confidence)
	}
}

func TestParseAnalysisFillsEmptyCollections(t *testing.T) {
	analysis, err := ParseAnalysis(`{"overall_score": 70}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if analysis.MatchedRequirements == nil || analysis.MissingRequirements == nil ||
		analysis.Concerns == nil || analysis.Recommendations.Talent == nil ||
		analysis.Recommendations.Recruiter == nil {
		t.Fatalf("collections should never be nil after parsing")
	}
}

func TestParseAnalysisRejectsGarbage(t *testing.T) {
	if _, err := ParseAnalysis("the model refused to answer"); err == nil {
		t.Fatalf("non-JSON content should fail")
	}
}
