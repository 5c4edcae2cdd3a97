package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"axiom/config"
	"axiom/db"
	"axiom/discordbot"
	"axiom/llm"
	"axiom/metrics"
	"axiom/ocr"
	"axiom/stt"
	"axiom/tts"
	"axiom/voice"
	"axiom/wake"
	"axiom/www"
)

func runDiscord(cmd *cobra.Command, args []string) {
	mainLogger, chatLogger, hearLogger, talkLogger, dataLogger := createLoggers()

	discordToken := viper.GetString("discord_token")
	groqAPIKey := viper.GetString("groq_api_key")
	elevenlabsAPIKey := viper.GetString("elevenlabs_api_key")

	if discordToken == "" {
		mainLogger.Fatal("missing DISCORD_TOKEN or --discord-token=")
	}
	if groqAPIKey == "" {
		mainLogger.Fatal("missing GROQ_API_KEY or --groq-api-key=")
	}
	if elevenlabsAPIKey == "" {
		mainLogger.Fatal(
			"missing ELEVENLABS_API_KEY or --elevenlabs-api-key=",
		)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	// The journal is optional. Without a database the bot still answers,
	// it just forgets.
	var journal voice.Journal
	if databaseURL := viper.GetString("database_url"); databaseURL != "" {
		pool, queries, err := db.OpenDatabase(ctx, databaseURL)
		if err != nil {
			mainLogger.Fatal("initialize database", "error", err)
		}
		defer pool.Close()

		journal = db.NewJournal(queries)
		if err := config.New(queries).Load(ctx); err != nil {
			dataLogger.Warn("could not load config overrides", "error", err)
		}
		dataLogger.Info("journal enabled")
	} else {
		dataLogger.Info("no DATABASE_URL, journal disabled")
	}

	rules, err := config.WakeRules(viper.GetViper())
	if err != nil {
		mainLogger.Fatal("read wake rules", "error", err)
	}
	gate, err := wake.New(rules)
	if err != nil {
		mainLogger.Fatal("compile wake rules", "error", err)
	}

	languageModel, closeModel, err := newLanguageModel(ctx)
	if err != nil {
		mainLogger.Fatal("create language model", "error", err)
	}
	defer closeModel()

	recognizer := stt.NewWhisperRecognizer(
		groqAPIKey,
		viper.GetString("stt.base_url"),
		viper.GetString("stt.model"),
		viper.GetString("stt.language"),
	)
	transcriber := stt.NewGateway(recognizer, hearLogger)
	assistant := llm.NewAssistant(languageModel, chatLogger)
	speechGenerator := tts.NewElevenLabsSpeechGenerator(elevenlabsAPIKey)
	voiceID := viper.GetString("tts.voice_id")

	// Image reading is optional too.
	var imageReader discordbot.ImageReader
	if key := viper.GetString("ocr_api_key"); key != "" {
		imageReader = ocr.NewClient(key, viper.GetString("ocr.url"))
	} else {
		chatLogger.Info("no OCR_API_KEY, images will not be read")
	}

	discord, err := discordbot.NewDiscordSession(discordToken)
	if err != nil {
		mainLogger.Fatal("create discord session", "error", err)
	}

	platform := discordbot.NewPlatform(discord, chatLogger)
	platform.Bitrate = viper.GetInt("discord.bitrate")

	manager := voice.NewManager(
		platform,
		config.VoiceConfig(viper.GetViper()),
		voice.Deps{
			Transcriber: transcriber,
			Gate:        gate,
			Responder: &voice.Dispatcher{
				Assistant:       assistant,
				Speech:          speechGenerator,
				Text:            platform,
				Journal:         journal,
				VoiceID:         voiceID,
				MaxSpeechLength: viper.GetInt("tts.max_length"),
				Log:             talkLogger,
			},
		},
		talkLogger,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(registry); err != nil {
		mainLogger.Fatal("register metrics", "error", err)
	}

	bot, err := discordbot.NewBot(
		discord,
		manager,
		assistant,
		speechGenerator,
		journal,
		discordbot.BotConfig{
			Prefix:  viper.GetString("command_prefix"),
			VoiceID: voiceID,
			OCR:     imageReader,
		},
		chatLogger,
	)
	if err != nil {
		mainLogger.Fatal("start discord bot", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return www.Serve(gctx, viper.GetInt("port"), www.NewRouter(bot, registry))
	})
	if url := keepAliveURL(); url != "" {
		g.Go(func() error {
			www.KeepAlive(gctx, url, viper.GetDuration("keepalive.interval"), mainLogger)
			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		mainLogger.Error("http server", "error", err)
	}

	mainLogger.Info("shutting down")
	if err := bot.Close(); err != nil {
		mainLogger.Warn("close discord session", "error", err)
	}
}

// newLanguageModel picks the answering model from llm.provider. The
// returned func releases the model's client.
func newLanguageModel(ctx context.Context) (llm.LanguageModel, func(), error) {
	switch provider := viper.GetString("llm.provider"); provider {
	case "", "groq":
		key := viper.GetString("groq_api_key")
		if key == "" {
			return nil, nil, fmt.Errorf("missing GROQ_API_KEY")
		}
		model := llm.NewOpenAILanguageModel(
			key,
			viper.GetString("llm.base_url"),
			viper.GetString("llm.model"),
		)
		return model, func() {}, nil
	case "gemini":
		key := viper.GetString("gemini_api_key")
		if key == "" {
			return nil, nil, fmt.Errorf("missing GEMINI_API_KEY")
		}
		model, err := llm.NewGeminiLanguageModel(ctx, key, viper.GetString("llm.gemini_model"))
		if err != nil {
			return nil, nil, err
		}
		return model, func() {
			if err := model.Close(); err != nil {
				log.Warn("close gemini client", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm.provider %q", provider)
	}
}

// keepAliveURL is the health URL to ping, from keepalive.url or the
// hosting platform's environment.
func keepAliveURL() string {
	base := viper.GetString("keepalive.url")
	for _, env := range []string{"RENDER_EXTERNAL_URL", "APP_URL"} {
		if base != "" {
			break
		}
		base = os.Getenv(env)
	}
	if base == "" {
		return ""
	}
	return strings.TrimSuffix(base, "/") + "/health"
}
