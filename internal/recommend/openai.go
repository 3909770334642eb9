package recommend

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/sashabaranov/go-openai"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/metrics"
)

const systemPrompt = "You recommend movies and TV shows. " +
	`Answer with a JSON object {"recommendations": [{"title", "reason", "media_type", "year", "external_id"}]} and nothing else.`

// OpenAIService asks a chat-completion model for recommendations.
type OpenAIService struct {
	client *openai.Client
	model  string
}

// NewOpenAIService builds the service. An empty baseURL keeps the
// library's default endpoint.
func NewOpenAIService(apiKey, baseURL, model string) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (s *OpenAIService) PersonalizedRecommendations(ctx context.Context, prefs auth.Preferences, count int) ([]Item, error) {
	count = normalizeCount(count)
	return s.complete(ctx, "personalized", personalizedPrompt(prefs, count), count)
}

func (s *OpenAIService) SimilarContentTitles(ctx context.Context, title, overview, mediaType string, count int) ([]Item, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("recommend: title is required")
	}
	count = normalizeCount(count)
	return s.complete(ctx, "similar", similarPrompt(title, overview, mediaType, count), count)
}

func (s *OpenAIService) complete(ctx context.Context, kind, prompt string, count int) ([]Item, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		metrics.RecommendationRequests.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("recommend: %s completion: %w", kind, err)
	}

	if len(resp.Choices) == 0 {
		metrics.RecommendationRequests.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("%w: no choices", ErrBadResponse)
	}

	items, err := parseItems(resp.Choices[0].Message.Content, count)
	if err != nil {
		metrics.RecommendationRequests.WithLabelValues(kind, "error").Inc()
		logger.Warn("recommendation response rejected", map[string]any{
			"kind":          kind,
			"finish_reason": string(resp.Choices[0].FinishReason),
			"error":         err.Error(),
		})
		return nil, err
	}

	metrics.RecommendationRequests.WithLabelValues(kind, "ok").Inc()
	return items, nil
}

type completionBody struct {
	Recommendations []Item `json:"recommendations"`
}

// parseItems decodes the model's JSON, drops untitled entries and trims
// the list to count.
func parseItems(content string, count int) ([]Item, error) {
	var body completionBody
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	items := make([]Item, 0, len(body.Recommendations))
	for _, it := range body.Recommendations {
		it.Title = strings.TrimSpace(it.Title)
		if it.Title == "" {
			continue
		}
		items = append(items, it)
		if len(items) == count {
			break
		}
	}
	return items, nil
}

func personalizedPrompt(p auth.Preferences, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recommend %d titles for a viewer with these preferences.\n", count)
	writeList(&b, "Genres", p.Genres)
	writeList(&b, "Moods", p.Moods)
	if p.ViewingTime > 0 {
		fmt.Fprintf(&b, "Available time: %d minutes\n", p.ViewingTime)
	}
	writeList(&b, "Favorite titles", p.FavoriteContent)
	writeList(&b, "Titles to avoid", p.AvoidContent)
	writeList(&b, "Allowed age ratings", p.AgeRatings)
	if p.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", p.Language)
	}
	return b.String()
}

func similarPrompt(title, overview, mediaType string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recommend %d titles similar to %q", count, title)
	if mediaType != "" {
		fmt.Fprintf(&b, " (%s)", mediaType)
	}
	b.WriteString(".\n")
	if overview != "" {
		fmt.Fprintf(&b, "Overview: %s\n", overview)
	}
	fmt.Fprintf(&b, "Do not include %q itself.\n", title)
	return b.String()
}

func writeList(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(values, ", "))
}
