package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"resume-matcher/domain"
)

// Scorer is the scoring adapter: resume text plus job description in,
// structured analysis out. Failures and timeouts are recoverable per resume.
type Scorer interface {
	Analyze(ctx context.Context, resumeText, jobDescription string) (*domain.Analysis, error)
}

// OpenRouterScorer talks to an OpenAI-compatible chat-completions endpoint
// (OpenRouter by default) and asks for a strict-JSON match analysis.
type OpenRouterScorer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewOpenRouterScorer(apiKey, baseURL, model string, timeout time.Duration, logger *zap.Logger) *OpenRouterScorer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenRouterScorer{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

func (s *OpenRouterScorer) Analyze(ctx context.Context, resumeText, jobDescription string) (*domain.Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.3,
		MaxTokens:   8192,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert resume analyst. Provide detailed analysis in JSON format.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildAnalysisPrompt(resumeText, jobDescription),
			},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &domain.ScoringError{Timeout: true, Err: err}
		}
		return nil, &domain.ScoringError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.ScoringError{Err: errors.New("no choices in completion response")}
	}

	content := resp.Choices[0].Message.Content
	s.logger.Debug("scoring response received",
		zap.String("model", s.model),
		zap.Int("content_length", len(content)))

	analysis, err := ParseAnalysis(content)
	if err != nil {
		return nil, &domain.ScoringError{Err: err}
	}
	return analysis, nil
}

func buildAnalysisPrompt(resumeText, jobDescription string) string {
	return fmt.Sprintf(`Analyze the match between this resume and job description. Return JSON with:

{
    "overall_score": 0-100,
    "component_scores": {
        "skills_match": 0-25,
        "experience_fit": 0-20,
        "education_match": 0-10,
        "semantic_similarity": 0-40,
        "penalties": 0-10
    },
    "matched_requirements": [
        {
            "jd_text": "requirement text",
            "resume_snippets": ["evidence 1", "evidence 2"],
            "similarity_score": 0.0-1.0
        }
    ],
    "missing_requirements": ["missing skill 1", "missing skill 2"],
    "concerns": ["concern 1", "concern 2"],
    "recommendations": {
        "talent": ["improvement 1", "improvement 2"],
        "recruiter": ["note 1", "note 2"]
    },
    "confidence": 0-100
}

JOB DESCRIPTION:
%s

RESUME:
%s

IMPORTANT: Return ONLY the JSON object, no other text.`, jobDescription, resumeText)
}

// ParseAnalysis turns raw model output into a validated analysis payload.
// Models wrap JSON in markdown fences or truncate long responses often
// enough that both need handling here.
func ParseAnalysis(content string) (*domain.Analysis, error) {
	cleaned := cleanJSONResponse(content)
	cleaned = repairTruncatedJSON(cleaned)

	var analysis domain.Analysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return nil, fmt.Errorf("parse analysis JSON: %w", err)
	}
	clampAnalysis(&analysis)
	return &analysis, nil
}

func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
	}
	if strings.HasSuffix(content, "```") {
		content = strings.TrimSuffix(content, "```")
	}

	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end != -1 && end > start {
		content = content[start : end+1]
	}

	return strings.TrimSpace(content)
}

// repairTruncatedJSON closes unbalanced braces/brackets left by a response
// that hit the token limit mid-object.
func repairTruncatedJSON(content string) string {
	if open, closed := strings.Count(content, "["), strings.Count(content, "]"); open > closed {
		content += strings.Repeat("]", open-closed)
	}
	if open, closed := strings.Count(content, "{"), strings.Count(content, "}"); open > closed {
		content += strings.Repeat("}", open-closed)
	}
	return content
}

func clampAnalysis(a *domain.Analysis) {
	a.OverallScore = clamp(a.OverallScore, 0, 100)
	a.Confidence = clamp(a.Confidence, 0, 100)
	a.ComponentScores.SkillsMatch = clamp(a.ComponentScores.SkillsMatch, 0, 25)
	a.ComponentScores.ExperienceFit = clamp(a.ComponentScores.ExperienceFit, 0, 20)
	a.ComponentScores.EducationMatch = clamp(a.ComponentScores.EducationMatch, 0, 10)
	a.ComponentScores.SemanticSimilarity = clamp(a.ComponentScores.SemanticSimilarity, 0, 40)
	a.ComponentScores.Penalties = clamp(a.ComponentScores.Penalties, 0, 10)

	if a.MatchedRequirements == nil {
		a.MatchedRequirements = []domain.MatchedRequirement{}
	}
	if a.MissingRequirements == nil {
		a.MissingRequirements = []string{}
	}
	if a.Concerns == nil {
		a.Concerns = []string{}
	}
	if a.Recommendations.Talent == nil {
		a.Recommendations.Talent = []string{}
	}
	if a.Recommendations.Recruiter == nil {
		a.Recommendations.Recruiter = []string{}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
