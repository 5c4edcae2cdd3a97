package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"axiom/llm"
	"axiom/ocr"
	"axiom/stt"
	"axiom/tts"
	"axiom/voice"
	"axiom/wake"
)

// SetDefaults declares every key the bot reads.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "debug")
	v.SetDefault("port", 3000)
	v.SetDefault("command_prefix", "!")
	v.SetDefault("keepalive.url", "")
	v.SetDefault("keepalive.interval", 14*time.Minute)
	v.SetDefault("discord.bitrate", 64000)

	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.base_url", llm.GroqBaseURL)
	v.SetDefault("llm.model", llm.DefaultGroqModel)
	v.SetDefault("llm.gemini_model", llm.DefaultGeminiModel)

	v.SetDefault("stt.base_url", stt.GroqBaseURL)
	v.SetDefault("stt.model", stt.DefaultWhisperModel)
	v.SetDefault("stt.language", "en")

	v.SetDefault("tts.voice_id", tts.DefaultVoiceID)
	v.SetDefault("tts.max_length", tts.MaxSpeechLength)

	v.SetDefault("ocr.url", ocr.DefaultURL)

	d := voice.DefaultConfig()
	v.SetDefault("voice.connect_timeout", d.ConnectTimeout)
	v.SetDefault("voice.reconnect_grace", d.ReconnectGrace)
	v.SetDefault("voice.silence_timeout", d.SilenceTimeout)
	v.SetDefault("voice.silence_rms", d.SilenceRMS)
	v.SetDefault("voice.min_chunks", d.MinChunks)
	v.SetDefault("voice.listener_ceiling", d.ListenerCeiling)
	v.SetDefault("voice.settle_delay", d.SettleDelay)
	v.SetDefault("voice.speaking_watchdog", d.SpeakingWatchdog)
	v.SetDefault("voice.empty_channel_delay", d.EmptyChannelDelay)
	v.SetDefault("voice.queue_size", d.QueueSize)
	v.SetDefault("voice.frame_buffer", d.FrameBuffer)

	w := wake.DefaultRules()
	v.SetDefault("wake.wake_words", w.WakeWords)
	v.SetDefault("wake.greetings", w.Greetings)
	v.SetDefault("wake.patterns", w.Patterns)
	v.SetDefault("wake.min_question_length", w.MinQuestionLength)
}

// VoiceConfig reads the voice section. Durations accept Go duration
// strings such as "500ms".
func VoiceConfig(v *viper.Viper) voice.Config {
	return voice.Config{
		ConnectTimeout:    v.GetDuration("voice.connect_timeout"),
		ReconnectGrace:    v.GetDuration("voice.reconnect_grace"),
		SilenceTimeout:    v.GetDuration("voice.silence_timeout"),
		SilenceRMS:        v.GetFloat64("voice.silence_rms"),
		MinChunks:         v.GetInt("voice.min_chunks"),
		ListenerCeiling:   v.GetDuration("voice.listener_ceiling"),
		SettleDelay:       v.GetDuration("voice.settle_delay"),
		SpeakingWatchdog:  v.GetDuration("voice.speaking_watchdog"),
		EmptyChannelDelay: v.GetDuration("voice.empty_channel_delay"),
		QueueSize:         v.GetInt("voice.queue_size"),
		FrameBuffer:       v.GetInt("voice.frame_buffer"),
	}
}

func WakeRules(v *viper.Viper) (wake.Rules, error) {
	var rules wake.Rules
	if err := v.UnmarshalKey("wake", &rules); err != nil {
		return wake.Rules{}, fmt.Errorf("read wake rules: %w", err)
	}
	return rules, nil
}
