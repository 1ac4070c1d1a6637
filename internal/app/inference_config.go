package app

import "github.com/gridwatch/healthindexer/internal/inference"

// ClientConfig converts InferenceConfig to the inference package representation.
func (c InferenceConfig) ClientConfig() inference.Config {
	return inference.Config{
		BaseURL: c.BaseURL,
		Timeout: c.Timeout,
	}
}
