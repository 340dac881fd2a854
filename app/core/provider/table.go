package provider

// Auth schemes used by the provider table.
const (
	AuthBearer     = "bearer"
	AuthXAPIKey    = "x-api-key"
	AuthQueryKey   = "query_key"
	AuthBaiduToken = "baidu_token"
	AuthNone       = "none"
)

// Wire formats. Everything OpenAI-compatible shares one code path;
// the rest each get a body builder and a response path.
const (
	FormatOpenAI     = "openai"
	FormatBaidu      = "baidu"
	FormatAnthropic  = "anthropic"
	FormatGoogle     = "google"
	FormatCohere     = "cohere"
	FormatCloudflare = "cloudflare"
	FormatOllama     = "ollama"
)

// Provider is one row of the static endpoint table. The table is
// configuration data, not behavior; representative entries cover every
// auth scheme and wire format.
type Provider struct {
	ID            string
	Name          string
	Endpoint      string
	Models        []string
	DefaultModel  string
	AuthType      string
	BodyFormat    string
	TokenEndpoint string
	Headers       map[string]string
}

var providerTable = []Provider{
	{
		ID:           "openai",
		Name:         "OpenAI",
		Endpoint:     "https://api.openai.com/v1/chat/completions",
		Models:       []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"},
		DefaultModel: "gpt-4o-mini",
		AuthType:     AuthBearer,
		BodyFormat:   FormatOpenAI,
	},
	{
		ID:           "deepseek",
		Name:         "DeepSeek",
		Endpoint:     "https://api.deepseek.com/chat/completions",
		Models:       []string{"deepseek-chat", "deepseek-coder", "deepseek-reasoner"},
		DefaultModel: "deepseek-chat",
		AuthType:     AuthBearer,
		BodyFormat:   FormatOpenAI,
	},
	{
		ID:           "groq",
		Name:         "Groq (免费)",
		Endpoint:     "https://api.groq.com/openai/v1/chat/completions",
		Models:       []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant", "mixtral-8x7b-32768", "gemma2-9b-it"},
		DefaultModel: "llama-3.3-70b-versatile",
		AuthType:     AuthBearer,
		BodyFormat:   FormatOpenAI,
	},
	{
		ID:           "siliconflow",
		Name:         "硅基流动 (免费)",
		Endpoint:     "https://api.siliconflow.cn/v1/chat/completions",
		Models:       []string{"Qwen/Qwen2.5-7B-Instruct", "Qwen/Qwen2.5-72B-Instruct", "deepseek-ai/DeepSeek-V2.5"},
		DefaultModel: "Qwen/Qwen2.5-7B-Instruct",
		AuthType:     AuthBearer,
		BodyFormat:   FormatOpenAI,
	},
	{
		ID:           "zhipu",
		Name:         "智谱 GLM",
		Endpoint:     "https://open.bigmodel.cn/api/paas/v4/chat/completions",
		Models:       []string{"glm-4-plus", "glm-4", "glm-4-air", "glm-4-flash"},
		DefaultModel: "glm-4-flash",
		AuthType:     AuthBearer,
		BodyFormat:   FormatOpenAI,
	},
	{
		ID:           "qwen",
		Name:         "阿里通义千问",
		Endpoint:     "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions",
		Models:       []string{"qwen-turbo", "qwen-plus", "qwen-max", "qwen-long"},
		DefaultModel: "qwen-turbo",
		AuthType:     AuthBearer,
		BodyFormat:   FormatOpenAI,
	},
	{
		ID:           "moonshot",
		Name:         "月之暗面 Kimi",
		Endpoint:     "https://api.moonshot.cn/v1/chat/completions",
		Models:       []string{"moonshot-v1-8k", "moonshot-v1-32k", "moonshot-v1-128k"},
		DefaultModel: "moonshot-v1-8k",
		AuthType:     AuthBearer,
		BodyFormat:   FormatOpenAI,
	},
	{
		ID:           "mistral",
		Name:         "Mistral AI",
		Endpoint:     "https://api.mistral.ai/v1/chat/completions",
		Models:       []string{"mistral-large-latest", "mistral-medium-latest", "mistral-small-latest"},
		DefaultModel: "mistral-small-latest",
		AuthType:     AuthBearer,
		BodyFormat:   FormatOpenAI,
	},
	{
		ID:            "baidu",
		Name:          "百度文心一言",
		Endpoint:      "https://aip.baidubce.com/rpc/2.0/ai_custom/v1/wenxinworkshop/chat/completions_pro",
		Models:        []string{"ERNIE-4.0-8K", "ERNIE-3.5-8K", "ERNIE-Speed-8K", "ERNIE-Lite-8K"},
		DefaultModel:  "ERNIE-3.5-8K",
		AuthType:      AuthBaiduToken,
		BodyFormat:    FormatBaidu,
		TokenEndpoint: "https://aip.baidubce.com/oauth/2.0/token",
	},
	{
		ID:           "anthropic",
		Name:         "Anthropic Claude",
		Endpoint:     "https://api.anthropic.com/v1/messages",
		Models:       []string{"claude-3-5-sonnet-20241022", "claude-3-opus-20240229", "claude-3-haiku-20240307"},
		DefaultModel: "claude-3-5-sonnet-20241022",
		AuthType:     AuthXAPIKey,
		BodyFormat:   FormatAnthropic,
		Headers:      map[string]string{"anthropic-version": "2023-06-01"},
	},
	{
		ID:           "google",
		Name:         "Google Gemini",
		Endpoint:     "https://generativelanguage.googleapis.com/v1beta/models/{model}:generateContent",
		Models:       []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-2.0-flash-exp"},
		DefaultModel: "gemini-1.5-flash",
		AuthType:     AuthQueryKey,
		BodyFormat:   FormatGoogle,
	},
	{
		ID:           "cohere",
		Name:         "Cohere",
		Endpoint:     "https://api.cohere.ai/v1/chat",
		Models:       []string{"command-r-plus", "command-r", "command"},
		DefaultModel: "command-r",
		AuthType:     AuthBearer,
		BodyFormat:   FormatCohere,
	},
	{
		ID:           "cloudflare",
		Name:         "Cloudflare Workers AI",
		Endpoint:     "https://api.cloudflare.com/client/v4/accounts/{account_id}/ai/run/@cf/meta/llama-3-8b-instruct",
		Models:       []string{"@cf/meta/llama-3.3-70b-instruct-fp8-fast", "@cf/meta/llama-3-8b-instruct"},
		DefaultModel: "@cf/meta/llama-3-8b-instruct",
		AuthType:     AuthBearer,
		BodyFormat:   FormatCloudflare,
	},
	{
		ID:           "ollama",
		Name:         "Ollama (本地)",
		Endpoint:     "http://localhost:11434/api/chat",
		Models:       []string{"llama3.2", "llama3.1", "qwen2.5", "mistral", "deepseek-r1"},
		DefaultModel: "llama3.2",
		AuthType:     AuthNone,
		BodyFormat:   FormatOllama,
	},
	{
		ID:           "lmstudio",
		Name:         "LM Studio (本地)",
		Endpoint:     "http://localhost:1234/v1/chat/completions",
		Models:       []string{"local-model"},
		DefaultModel: "local-model",
		AuthType:     AuthNone,
		BodyFormat:   FormatOpenAI,
	},
	{
		ID:         "custom",
		Name:       "自定义接口",
		AuthType:   AuthBearer,
		BodyFormat: FormatOpenAI,
	},
}

// Lookup returns the table entry for a provider id.
func Lookup(id string) (Provider, bool) {
	for _, p := range providerTable {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}

// List returns the full provider table.
func List() []Provider {
	out := make([]Provider, len(providerTable))
	copy(out, providerTable)
	return out
}
