package config

import (
	"sync"
)

var (
	textractOnce   sync.Once
	textractConfig *TextractConfig
)

// TextractConfig configures the Textract table finder. Credentials fall back
// to the default AWS chain when AccessKey is empty.
type TextractConfig struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

func GetTextractConfig() *TextractConfig {
	textractOnce.Do(func() {
		loadEnv()
		textractConfig = &TextractConfig{
			Region:    getEnv("TEXTRACT_REGION", getEnv("AWS_REGION", "us-east-1")),
			Endpoint:  getEnv("TEXTRACT_ENDPOINT", ""),
			AccessKey: getEnv("AWS_ACCESS_KEY", ""),
			SecretKey: getEnv("AWS_SECRET_KEY", ""),
		}
	})
	return textractConfig
}
