package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			LogFormat:             "text",
			MaxConcurrentMessages: 10,
		},
		Site: SiteConfig{
			BaseURL:        "https://lekmanga.net",
			UserAgent:      "MangaBot/1.0",
			Renderer:       "http",
			ListingTimeout: 10,
			ChapterTimeout: 15,
		},
		Browser: BrowserConfig{
			Headless: true,
		},
		Bot: BotConfig{
			ResetKeyword: "list",
			Locale:       "en",
		},
		Delivery: DeliveryConfig{
			ImageDelayMs: 500,
		},
		Channels: ChannelsConfig{
			Messenger: MessengerConfig{
				Enabled:     false,
				APIVersion:  "v19.0",
				GraphBase:   "https://graph.facebook.com",
				WebhookPath: "/webhook",
			},
			Telegram: TelegramConfig{
				Enabled: false,
			},
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  "~/.mangabot/history.db",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
