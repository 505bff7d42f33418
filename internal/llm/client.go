package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// maxGeminiResponseLogBytes is the max length of a Gemini response body to log in full (to avoid huge logs).
const maxGeminiResponseLogBytes = 8192

const (
	defaultTextModel   = "gemini-3-flash-preview"
	defaultImageModel  = "gemini-3-pro-image-preview"
	defaultAspectRatio = "9:16"
	defaultImageSize   = "1K"
	defaultTemperature = 0.7

	// BackendGenai sends text calls through google.golang.org/genai.
	BackendGenai = "genai"
	// BackendLangChain sends text calls through langchaingo's googleai model.
	BackendLangChain = "langchaingo"
)

// Config is the explicit configuration for a Client. It replaces process-wide
// credentials so tests can point the client at a fake endpoint.
type Config struct {
	APIKey            string
	Endpoint          string // optional Gemini API base URL override
	TextModel         string
	ImageModel        string
	TextBackend       string // BackendGenai (default) or BackendLangChain
	Temperature       *float64 // nil selects 0.7; an explicit 0 is kept
	AspectRatio       string
	ImageSize         string
	RequestsPerMinute int // 0 disables outbound limiting
	HTTPClient        *http.Client
}

func (c *Config) applyDefaults() {
	if c.TextModel == "" {
		c.TextModel = defaultTextModel
	}
	if c.ImageModel == "" {
		c.ImageModel = defaultImageModel
	}
	if c.TextBackend == "" {
		c.TextBackend = BackendGenai
	}
	if c.Temperature == nil {
		c.Temperature = genai.Ptr(float64(defaultTemperature))
	}
	if c.AspectRatio == "" {
		c.AspectRatio = defaultAspectRatio
	}
	if c.ImageSize == "" {
		c.ImageSize = defaultImageSize
	}
}

// textModel sends one system instruction plus one user message and returns the plain text answer.
type textModel interface {
	generateText(ctx context.Context, systemInstruction, userContent string, temperature float64) (string, error)
}

// imageModel sends a prompt with an image config and returns the first candidate's parts.
type imageModel interface {
	generateImage(ctx context.Context, prompt, aspectRatio, imageSize string) ([]*genai.Part, error)
}

// Client wraps the Gemini text and image models used by the studio.
type Client struct {
	cfg     Config
	text    textModel
	image   imageModel
	limiter *rate.Limiter
}

// httpClientForEndpoint returns an http.Client that rewrites request URLs to the given base endpoint (e.g. http://host.docker.internal:31300/gemini).
func httpClientForEndpoint(baseEndpoint string) *http.Client {
	base, err := url.Parse(baseEndpoint)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", baseEndpoint).Msg("Invalid GEMINI_API_ENDPOINT, using default")
		return nil
	}
	base.Path = strings.TrimSuffix(base.Path, "/")
	return &http.Client{
		Transport: &endpointRoundTripper{base: base, next: http.DefaultTransport},
	}
}

// endpointRoundTripper rewrites request URLs to a custom base (scheme, host, path prefix).
type endpointRoundTripper struct {
	base *url.URL
	next http.RoundTripper
}

func (e *endpointRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.URL.Scheme = e.base.Scheme
	req2.URL.Host = e.base.Host
	req2.URL.Path = path.Join("/", e.base.Path, strings.TrimPrefix(req.URL.Path, "/"))
	req2.URL.RawPath = ""
	if req.URL.RawQuery != "" {
		req2.URL.RawQuery = req.URL.RawQuery
	}
	return e.next.RoundTrip(req2)
}

// logGeminiResponse logs Gemini response text, truncating if over maxGeminiResponseLogBytes.
func logGeminiResponse(caller, raw string) {
	if len(raw) <= maxGeminiResponseLogBytes {
		log.Debug().Str("caller", caller).Str("gemini_response", raw).Msg("Gemini response")
		return
	}
	log.Debug().
		Str("caller", caller).
		Str("gemini_response", raw[:maxGeminiResponseLogBytes]+"... [truncated]").
		Int("gemini_response_len", len(raw)).
		Msg("Gemini response")
}

// NewClient creates a new LLM client. A client that cannot reach Gemini
// (for example because the API key is missing) is still returned; every call
// on it fails with a remote-call error, matching how a rejected credential
// surfaces at runtime.
func NewClient(ctx context.Context, cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := cfg.HTTPClient
	if httpClient == nil && cfg.Endpoint != "" {
		httpClient = httpClientForEndpoint(cfg.Endpoint)
	}

	var genaiModels *genaiModel
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize genai client; generation calls will fail")
	} else {
		genaiModels = &genaiModel{client: genaiClient, textModel: cfg.TextModel, imageModel: cfg.ImageModel}
	}

	c := &Client{cfg: cfg}
	if genaiModels != nil {
		c.text = genaiModels
		c.image = genaiModels
	} else {
		c.text = unavailableModel{err: err}
		c.image = unavailableModel{err: err}
	}

	if cfg.TextBackend == BackendLangChain {
		lc, lcErr := newLangChainModel(ctx, cfg.APIKey, cfg.TextModel, httpClient)
		if lcErr != nil {
			log.Error().Err(lcErr).Msg("Failed to initialize langchaingo text model; generation calls will fail")
			c.text = unavailableModel{err: lcErr}
		} else {
			c.text = lc
		}
	}

	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	log.Info().
		Str("model_text", cfg.TextModel).
		Str("model_image", cfg.ImageModel).
		Str("text_backend", cfg.TextBackend).
		Str("api_endpoint", cfg.Endpoint).
		Float64("temperature", *cfg.Temperature).
		Str("aspect_ratio", cfg.AspectRatio).
		Str("image_size", cfg.ImageSize).
		Int("requests_per_minute", cfg.RequestsPerMinute).
		Bool("genai_client", genaiModels != nil).
		Msg("LLM client initialized")

	return c
}

// wait blocks on the outbound limiter, if any.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// genaiModel implements textModel and imageModel with the unified genai SDK.
type genaiModel struct {
	client     *genai.Client
	textModel  string
	imageModel string
}

func (g *genaiModel) generateText(ctx context.Context, systemInstruction, userContent string, temperature float64) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.textModel, genai.Text(userContent), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr(float32(temperature)),
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func (g *genaiModel) generateImage(ctx context.Context, prompt, aspectRatio, imageSize string) ([]*genai.Part, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.imageModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage), string(genai.ModalityText)},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: aspectRatio,
			ImageSize:   imageSize,
		},
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil, nil
	}
	return resp.Candidates[0].Content.Parts, nil
}

// unavailableModel fails every call with the initialization error.
type unavailableModel struct {
	err error
}

func (u unavailableModel) generateText(context.Context, string, string, float64) (string, error) {
	return "", fmt.Errorf("gemini client not initialized: %w", u.err)
}

func (u unavailableModel) generateImage(context.Context, string, string, string) ([]*genai.Part, error) {
	return nil, fmt.Errorf("gemini client not initialized: %w", u.err)
}
