package sanitize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LLMChecker is an optional, off-by-default secondary signal: a together.ai
// completion call asked to flag bad practices or security issues in
// submitted source. It never blocks a submission by itself — spec.md's
// Container Driver sandbox is the actual safety boundary — it only adds an
// advisory note a future review surface could show alongside a result.
// Adapted from the teacher's internal/checkviaLLM.go, generalized behind a
// struct instead of a free function taking a bare API key string.
type LLMChecker struct {
	APIURL string
	APIKey string
	Model  string
	Client *http.Client
}

// NewLLMChecker returns a checker, or nil if apiKey is empty (the caller's
// signal that this optional check is disabled).
func NewLLMChecker(apiURL, apiKey string) *LLMChecker {
	if apiKey == "" {
		return nil
	}
	if apiURL == "" {
		apiURL = "https://api.together.xyz/v1/completions"
	}
	return &LLMChecker{
		APIURL: apiURL,
		APIKey: apiKey,
		Model:  "meta-llama/Llama-3.3-70B-Instruct-Turbo",
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// Advise returns a free-form note on the submission, or empty if the
// analysis came back clean. Errors are non-fatal to the caller: a failed
// advisory call should never fail a submission.
func (c *LLMChecker) Advise(ctx context.Context, language string, source []byte) (string, error) {
	prompt := fmt.Sprintf(
		"Analyze this %s code for bad practices, inefficient resource usage, and security issues:\n\n%s\n\nProvide a concise analysis.",
		language, string(source),
	)

	body, err := json.Marshal(completionRequest{
		Model:       c.Model,
		Prompt:      prompt,
		MaxTokens:   500,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sanitize: llm advisory call failed with status %s", resp.Status)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", nil
	}

	analysis := out.Choices[0].Text
	if looksConcerning(analysis) {
		return analysis, nil
	}
	return "", nil
}

func looksConcerning(analysis string) bool {
	lower := strings.ToLower(analysis)
	return strings.Contains(lower, "bad practice") ||
		strings.Contains(lower, "security issue") ||
		strings.Contains(lower, "vulnerability")
}
