package config

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides settings with the environment. For variables with
// aliases the first one set wins.
func (c *Config) ApplyEnv(lookup LookupFunc) {
	overlay(lookup, &c.MiniMax.APIKey, "MINIMAX_API_KEY")
	overlay(lookup, &c.MiniMax.BaseURL, "MINIMAX_API_URL")
	overlay(lookup, &c.MiniMax.VoiceID, "VOICEID01", "VoiceID01", "VoiceID")
	overlay(lookup, &c.MiniMax.CloneModel, "MINIMAX_CLONE_MODEL")
	overlay(lookup, &c.Chat.Endpoint, "SERVER_IP", "SERVER_API_HOST")
	overlay(lookup, &c.Chat.APIKey, "MARIE_API_KEY")
	overlay(lookup, &c.Chat.Model, "CHAT_MODEL")
	overlay(lookup, &c.Gradio.URL, "GRADIO_URL")
	overlay(lookup, &c.Gradio.Token, "HF_TOKEN")
	overlay(lookup, &c.Langfuse.PublicKey, "LANGFUSE_PUBLIC_KEY")
	overlay(lookup, &c.Langfuse.SecretKey, "LANGFUSE_SECRET_KEY")
	overlay(lookup, &c.Langfuse.Host, "LANGFUSE_BASE_URL", "LANGFUSE_HOST")
	overlay(lookup, &c.NATS.URL, "NATS_URL")
}

func overlay(lookup LookupFunc, target *string, keys ...string) {
	for _, key := range keys {
		value, ok := lookup(key)
		if ok && value != "" {
			*target = value

			return
		}
	}
}
