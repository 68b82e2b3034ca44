package logger

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds all logging-related command-line flags
type Flags struct {
	LogLevel    string
	LogFormat   string
	LogFile     string
	DebugRTP    bool
	DebugCrypto bool
	DebugVoice  bool
	DebugPacing bool
	DebugUDP    bool
	DebugAll    bool
}

// RegisterFlags registers logging flags with the given FlagSet
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info",
		"Log level (shorthand)")

	fs.StringVar(&f.LogFormat, "log-format", "text",
		"Log output format: text, json")

	fs.StringVar(&f.LogFile, "log-file", "",
		"Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "",
		"Log output file path (shorthand)")

	// Debug category flags
	fs.BoolVar(&f.DebugRTP, "debug-rtp", false,
		"Enable detailed RTP packetization debugging (sequence, timestamp, payload)")
	fs.BoolVar(&f.DebugCrypto, "debug-crypto", false,
		"Enable AEAD encrypt/decrypt debugging (nonce counters, never key material)")
	fs.BoolVar(&f.DebugVoice, "debug-voice", false,
		"Enable voice-gateway control connection debugging (opcodes, state transitions)")
	fs.BoolVar(&f.DebugPacing, "debug-pacing", false,
		"Enable pacing stream debugging (PTS, sleep intervals, sync wait)")
	fs.BoolVar(&f.DebugUDP, "debug-udp", false,
		"Enable UDP socket and IP discovery debugging")
	fs.BoolVar(&f.DebugAll, "debug-all", false,
		"Enable all debug categories")

	return f
}

// ToConfig converts Flags to a logger Config
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	// Parse log level
	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	// Parse format
	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	// Set output file
	cfg.OutputFile = f.LogFile

	// Enable debug categories
	if f.DebugAll {
		cfg.EnableCategory(DebugAll)
		// Force debug level when any debug category is enabled
		cfg.Level = LevelDebug
	} else {
		if f.DebugRTP {
			cfg.EnableCategory(DebugRTP)
			cfg.Level = LevelDebug
		}
		if f.DebugCrypto {
			cfg.EnableCategory(DebugCrypto)
			cfg.Level = LevelDebug
		}
		if f.DebugVoice {
			cfg.EnableCategory(DebugVoice)
			cfg.Level = LevelDebug
		}
		if f.DebugPacing {
			cfg.EnableCategory(DebugPacing)
			cfg.Level = LevelDebug
		}
		if f.DebugUDP {
			cfg.EnableCategory(DebugUDP)
			cfg.Level = LevelDebug
		}
	}

	return cfg, nil
}

// PrintUsageExamples prints usage examples for logging flags
func PrintUsageExamples() {
	examples := `
Logging Examples:

  Basic usage (INFO level, text format to stdout):
    ./golive-diagnose

  Enable DEBUG level:
    ./golive-diagnose --log-level debug
    ./golive-diagnose -l debug

  Log to file:
    ./golive-diagnose --log-file session.log
    ./golive-diagnose -o session.log

  JSON format for structured logging:
    ./golive-diagnose --log-format json -o session.json

  Debug RTP packetization only:
    ./golive-diagnose --debug-rtp

  Debug the voice-gateway state machine only:
    ./golive-diagnose --debug-voice

  Debug multiple categories:
    ./golive-diagnose --debug-rtp --debug-pacing --debug-udp

  Debug everything:
    ./golive-diagnose --debug-all -o debug.log

  Production logging (WARN level, JSON to file):
    ./golive-diagnose -l warn --log-format json -o production.log
`
	fmt.Println(examples)
}

// String returns a string representation of enabled flags
func (f *Flags) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("level=%s", f.LogLevel))
	parts = append(parts, fmt.Sprintf("format=%s", f.LogFormat))

	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stdout")
	}

	var debugCategories []string
	if f.DebugAll {
		debugCategories = append(debugCategories, "all")
	} else {
		if f.DebugRTP {
			debugCategories = append(debugCategories, "rtp")
		}
		if f.DebugCrypto {
			debugCategories = append(debugCategories, "crypto")
		}
		if f.DebugVoice {
			debugCategories = append(debugCategories, "voice")
		}
		if f.DebugPacing {
			debugCategories = append(debugCategories, "pacing")
		}
		if f.DebugUDP {
			debugCategories = append(debugCategories, "udp")
		}
	}

	if len(debugCategories) > 0 {
		parts = append(parts, fmt.Sprintf("debug=[%s]", strings.Join(debugCategories, ",")))
	}

	return strings.Join(parts, " ")
}
