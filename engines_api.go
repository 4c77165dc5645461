package imagemod

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	apiRetryAttempts = 2
	apiRetryBase     = 200 * time.Millisecond
)

// postWithRetry sends a request built by build, retrying transient failures
// (network errors, 429, 5xx) with fibonacci backoff. Non-retryable statuses
// fail immediately.
func postWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error)) ([]byte, error) {
	var body []byte
	backoff := retry.WithMaxRetries(apiRetryAttempts, retry.NewFibonacci(apiRetryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := build()
		if err != nil {
			return err
		}
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// OpenAIModerationEngine scores frames with the OpenAI moderation endpoint.
// The inference itself is opaque: the engine posts the frame's JPEG bytes and
// maps the response categories onto the pipeline's categories.
type OpenAIModerationEngine struct {
	APIKey   string
	Model    string       // default "omni-moderation-latest"
	Endpoint string       // default "https://api.openai.com/v1/moderations"
	Client   *http.Client // nil = http.DefaultClient
}

func (e *OpenAIModerationEngine) Name() string { return "openai-moderation" }

func (e *OpenAIModerationEngine) Available() (bool, string) {
	if e.APIKey == "" {
		return false, "api key not set"
	}
	return true, ""
}

func (e *OpenAIModerationEngine) Score(ctx context.Context, f *Frame) (Observation, error) {
	jpeg, err := f.JPEGBytes()
	if err != nil {
		return Observation{}, fmt.Errorf("encode frame: %w", err)
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)

	payload, err := json.Marshal(map[string]any{
		"model": e.model(),
		"input": []map[string]any{
			{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
		},
	})
	if err != nil {
		return Observation{}, err
	}

	body, err := postWithRetry(ctx, e.client(), func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, e.endpoint(), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
		return req, nil
	})
	if err != nil {
		return Observation{}, fmt.Errorf("moderation request: %w", err)
	}

	var parsed struct {
		Results []struct {
			CategoryScores map[string]float64 `json:"category_scores"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Observation{}, fmt.Errorf("parse moderation response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return Observation{}, fmt.Errorf("moderation response has no results")
	}
	cs := parsed.Results[0].CategoryScores

	obs := Observation{Scores: map[string]float64{
		CategoryNudity:   cs["sexual"],
		CategoryViolence: max(cs["violence"], cs["violence/graphic"]),
		CategoryHateText: max(cs["hate"], cs["hate/threatening"]),
	}}
	// Sexual content involving minors is never a judgement call.
	if cs["sexual/minors"] > 0.01 {
		obs.Scores[CategoryNudity] = 1
		obs.Detail = "sexual/minors category triggered"
	}
	return obs, nil
}

func (e *OpenAIModerationEngine) model() string {
	if e.Model != "" {
		return e.Model
	}
	return "omni-moderation-latest"
}

func (e *OpenAIModerationEngine) endpoint() string {
	if e.Endpoint != "" {
		return e.Endpoint
	}
	return "https://api.openai.com/v1/moderations"
}

func (e *OpenAIModerationEngine) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return http.DefaultClient
}

// SightengineEngine scores frames with the Sightengine check endpoint.
type SightengineEngine struct {
	APIUser   string
	APISecret string
	Models    string       // default "nudity,weapon,violence,gore"
	Endpoint  string       // default "https://api.sightengine.com/1.0/check.json"
	Client    *http.Client // nil = http.DefaultClient
}

func (e *SightengineEngine) Name() string { return "sightengine" }

func (e *SightengineEngine) Available() (bool, string) {
	if e.APIUser == "" || e.APISecret == "" {
		return false, "api credentials not set"
	}
	return true, ""
}

func (e *SightengineEngine) Score(ctx context.Context, f *Frame) (Observation, error) {
	jpeg, err := f.JPEGBytes()
	if err != nil {
		return Observation{}, fmt.Errorf("encode frame: %w", err)
	}

	var form bytes.Buffer
	w := multipart.NewWriter(&form)
	_ = w.WriteField("models", e.models())
	_ = w.WriteField("api_user", e.APIUser)
	_ = w.WriteField("api_secret", e.APISecret)
	part, err := w.CreateFormFile("media", "frame.jpg")
	if err != nil {
		return Observation{}, err
	}
	if _, err := part.Write(jpeg); err != nil {
		return Observation{}, err
	}
	if err := w.Close(); err != nil {
		return Observation{}, err
	}

	body, err := postWithRetry(ctx, e.client(), func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, e.endpoint(), bytes.NewReader(form.Bytes()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return Observation{}, fmt.Errorf("sightengine request: %w", err)
	}

	var parsed struct {
		Status string `json:"status"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
		Nudity struct {
			Raw     float64 `json:"raw"`
			Partial float64 `json:"partial"`
			Safe    float64 `json:"safe"`
		} `json:"nudity"`
		Weapon float64 `json:"weapon"`
		Gore   struct {
			Prob float64 `json:"prob"`
		} `json:"gore"`
		Violence struct {
			Prob float64 `json:"prob"`
		} `json:"violence"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Observation{}, fmt.Errorf("parse sightengine response: %w", err)
	}
	if parsed.Status != "success" {
		return Observation{}, fmt.Errorf("sightengine: %s", parsed.Error.Message)
	}

	// Partial nudity is weighted down and capped by the reported safe
	// probability before it competes with raw nudity.
	partial := parsed.Nudity.Partial
	if parsed.Nudity.Safe > 0 {
		partial = min(partial, 1-parsed.Nudity.Safe)
	}

	return Observation{Scores: map[string]float64{
		CategoryNudity:   max(parsed.Nudity.Raw, partial*0.6),
		CategoryWeapon:   parsed.Weapon,
		CategoryViolence: max(parsed.Violence.Prob, parsed.Gore.Prob),
	}}, nil
}

func (e *SightengineEngine) models() string {
	if e.Models != "" {
		return e.Models
	}
	return "nudity,weapon,violence,gore"
}

func (e *SightengineEngine) endpoint() string {
	if e.Endpoint != "" {
		return e.Endpoint
	}
	return "https://api.sightengine.com/1.0/check.json"
}

func (e *SightengineEngine) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return http.DefaultClient
}
