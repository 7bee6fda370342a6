package config

// NewSlackForTest creates a Slack config for testing purposes
func NewSlackForTest(botToken, signingSecret string) *Slack {
	return &Slack{
		botToken:      botToken,
		signingSecret: signingSecret,
	}
}

// NewGeminiForTest creates a Gemini config for testing purposes
func NewGeminiForTest(projectID, location string) *Gemini {
	return &Gemini{
		projectID: projectID,
		location:  location,
	}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: output,
	}
}

// NewStorageForTest creates a Storage config for testing purposes
func NewStorageForTest(backend, bucket, prefix string) *Storage {
	return &Storage{
		backend: backend,
		bucket:  bucket,
		prefix:  prefix,
	}
}

// NewBraveForTest creates a Brave config for testing purposes
func NewBraveForTest(apiKey string) *Brave {
	return &Brave{apiKey: apiKey}
}

// NewImageGenForTest creates an ImageGen config for testing purposes
func NewImageGenForTest(apiKey, model string) *ImageGen {
	return &ImageGen{
		apiKey: apiKey,
		model:  model,
	}
}
