package providers

import "context"

const (
	zhipuDefaultBase  = "https://open.bigmodel.cn/api/paas/v4"
	zhipuDefaultModel = "glm-4.6"
)

// ZhipuProvider wraps OpenAIProvider for Zhipu's GLM API (bigmodel.cn).
// The endpoint is OpenAI-compatible; GLM models bound temperature to the
// open interval (0, 1) and reject boundary values instead of clamping.
type ZhipuProvider struct {
	*OpenAIProvider
}

func NewZhipuProvider(apiKey, apiBase, defaultModel string) *ZhipuProvider {
	if apiBase == "" {
		apiBase = zhipuDefaultBase
	}
	if defaultModel == "" {
		defaultModel = zhipuDefaultModel
	}
	return &ZhipuProvider{
		OpenAIProvider: NewOpenAIProvider("zhipu", apiKey, apiBase, defaultModel),
	}
}

func (p *ZhipuProvider) Name() string { return "zhipu" }

func (p *ZhipuProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.OpenAIProvider.Chat(ctx, clampZhipuOptions(req))
}

func (p *ZhipuProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	return p.OpenAIProvider.ChatStream(ctx, clampZhipuOptions(req), onChunk)
}

// clampZhipuOptions keeps temperature inside GLM's accepted range.
// The caller's Options map is cloned before modification.
func clampZhipuOptions(req ChatRequest) ChatRequest {
	v, ok := req.Options[OptTemperature]
	if !ok {
		return req
	}
	t, ok := optionFloat(v)
	if !ok {
		return req
	}

	clamped := t
	if clamped <= 0 {
		clamped = 0.01
	} else if clamped >= 1 {
		clamped = 0.99
	}
	if clamped == t {
		return req
	}

	opts := make(map[string]interface{}, len(req.Options))
	for k, val := range req.Options {
		opts[k] = val
	}
	opts[OptTemperature] = clamped
	req.Options = opts
	return req
}

func optionFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
