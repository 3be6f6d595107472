package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY,required"`
	ChatModel    string `env:"OPENAI_MODEL_CHAT" envDefault:"gpt-4o-mini"`
	DebriefModel string `env:"OPENAI_MODEL_DEBRIEF" envDefault:""`

	// System prompts seeding the AI roles. Persona sourcing lives outside
	// this server; these are injected verbatim as system context.
	IntervieweePrompt string `env:"INTERVIEWEE_PROMPT" envDefault:"You are a patient being interviewed by a public health worker about a recent illness. Answer naturally and only from your own experience."`
	InterviewerPrompt string `env:"INTERVIEWER_PROMPT" envDefault:"You are a public health worker conducting an epidemiological interview. Ask one question at a time. Call the end_interview function when the interview is complete."`

	// Opening line attributed to the interviewer when an autonomous
	// observer session starts.
	InterviewerOpening string `env:"INTERVIEWER_OPENING" envDefault:"Hello, thank you for taking the time. Could you start by telling me when you first felt unwell?"`

	TurnIntervalMS    int `env:"TURN_INTERVAL_MS" envDefault:"500"`
	SessionTTLSeconds int `env:"SESSION_TTL_SECONDS" envDefault:"900"`
	RetentionDays     int `env:"COMPLETED_RETENTION_DAYS" envDefault:"30"`
	MessageRateLimit  int `env:"MESSAGE_RATE_LIMIT_PER_MIN" envDefault:"60"`
	RegisterRateLimit int `env:"REGISTER_RATE_LIMIT_PER_MIN" envDefault:"10"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) TurnInterval() time.Duration {
	return time.Duration(c.TurnIntervalMS) * time.Millisecond
}

// SessionTTL is how long a session survives with no live human connection
// before the reaper terminates it.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.DebriefModel == "" {
		cfg.DebriefModel = cfg.ChatModel
	}
	return &cfg, nil
}
