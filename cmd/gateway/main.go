package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/TryMightyAI/mirage/pkg/config"
	"github.com/TryMightyAI/mirage/pkg/engine"
	"github.com/TryMightyAI/mirage/pkg/events"
	"github.com/TryMightyAI/mirage/pkg/extract"
	"github.com/TryMightyAI/mirage/pkg/intel"
	"github.com/TryMightyAI/mirage/pkg/patterns"
	"github.com/TryMightyAI/mirage/pkg/reply"
)

const Version = "0.1.0"

// Gateway bundles the engine with its optional backends.
// All backends are optional and gracefully degrade if unavailable.
type Gateway struct {
	engine     *engine.Engine
	dispatcher *events.Dispatcher
	synth      *reply.Synthesizer
	archive    *intel.ArchiveTarget
	redis      *intel.RedisAggregator
	config     *config.Config
}

// NewGateway assembles the engine and every configured backend.
func NewGateway(cfg *config.Config) (*Gateway, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	g := &Gateway{config: cfg}
	ctx := context.Background()

	if len(cfg.ExtraKeywords) > 0 {
		patterns.Get().RegisterKeywords(cfg.ExtraKeywords)
		log.Printf("✓ Custom keywords registered (%d)", len(cfg.ExtraKeywords))
	}

	opts := engine.DefaultOptions()
	opts.EngageThreshold = cfg.EngageThreshold
	opts.DecayFactor = cfg.DecayFactor
	opts.JumpMargin = cfg.JumpMargin
	opts.HoldTurns = cfg.HoldTurns
	opts.StaleTurnLimit = cfg.StaleTurnLimit
	opts.MinIntelTypes = cfg.MinIntelTypes
	opts.TurnCeiling = cfg.TurnCeiling
	opts.EscalationTurns = cfg.EscalationTurns
	opts.EscalationBump = cfg.EscalationBump
	opts.MaxMessages = cfg.MaxMessages
	opts.Weights = engine.SignalWeights{
		Urgency:        cfg.UrgencyWeight,
		PaymentRequest: cfg.PaymentWeight,
		Threat:         cfg.ThreatWeight,
		Repetition:     cfg.RepetitionWeight,
	}

	// Persona table override - optional
	if cfg.PersonaFile != "" {
		personas, err := engine.LoadPersonaFile(cfg.PersonaFile)
		if err != nil {
			return nil, fmt.Errorf("persona file: %w", err)
		}
		opts.Personas = personas
		log.Printf("✓ Persona table loaded from %s (%d bands)", cfg.PersonaFile, len(personas))
	}

	engOpts := []engine.EngineOption{
		engine.WithSessionStore(engine.NewInMemoryStore(
			engine.WithMaxAge(cfg.SessionTTL),
		)),
	}

	// Shared intel view via Redis - optional
	if cfg.RedisAddr != "" {
		agg, err := intel.NewRedisAggregator(ctx, cfg.RedisAddr)
		if err != nil {
			log.Printf("○ Redis intel view disabled (connect failed: %v)", err)
		} else {
			g.redis = agg
			engOpts = append(engOpts, engine.WithAggregator(agg))
			log.Printf("✓ Redis intel view enabled (%s)", cfg.RedisAddr)
		}
	} else {
		log.Println("○ Redis intel view disabled (in-memory aggregator)")
	}

	// Event delivery targets - all optional
	var dispatchOpts []events.DispatcherOption
	dispatchOpts = append(dispatchOpts,
		events.WithQueueSize(cfg.EventQueueSize),
		events.WithMaxAttempts(cfg.EventMaxAttempts),
		events.WithBaseBackoff(cfg.EventBackoff),
	)
	targets := 0
	if cfg.WebhookURL != "" {
		dispatchOpts = append(dispatchOpts, events.WithTarget(events.NewWebhookTarget(cfg.WebhookURL)))
		targets++
		log.Printf("✓ Webhook delivery enabled (%s)", cfg.WebhookURL)
	} else {
		log.Println("○ Webhook delivery disabled (no URL)")
	}
	if cfg.PostgresDSN != "" {
		archive, err := intel.NewArchiveTarget(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Printf("○ Report archive disabled (postgres: %v)", err)
		} else {
			g.archive = archive
			dispatchOpts = append(dispatchOpts, events.WithTarget(archive))
			targets++
			log.Println("✓ Report archive enabled (postgres)")
		}
	} else {
		log.Println("○ Report archive disabled (no DSN)")
	}
	if targets > 0 {
		g.dispatcher = events.NewDispatcher(dispatchOpts...)
		engOpts = append(engOpts, engine.WithEventSink(g.dispatcher))
	}

	// Semantic script matching (chromem-go + Ollama embeddings) - optional
	if cfg.EnableSemantics {
		semantic, err := engine.NewSemanticDetector(cfg.OllamaURL)
		if err != nil {
			log.Printf("○ Semantic matching disabled (init failed: %v)", err)
		} else {
			loadCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
			if err := semantic.LoadScripts(loadCtx); err != nil {
				log.Printf("○ Semantic matching disabled (script load failed: %v)", err)
			} else {
				engOpts = append(engOpts, engine.WithSemanticDetector(semantic))
				log.Println("✓ Semantic matching enabled (chromem-go + Ollama embeddings)")
			}
			cancel()
		}
	} else {
		log.Println("○ Semantic matching disabled")
	}

	eng, err := engine.NewEngine(opts, engOpts...)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	g.engine = eng

	// Reply synthesis via the LLM collaborator - optional
	if cfg.EnableReplies && cfg.LLMProvider != config.ProviderNone {
		g.synth = reply.NewSynthesizer(reply.Config{
			Provider: reply.Provider(cfg.LLMProvider),
			APIKey:   cfg.LLMAPIKey,
			Model:    cfg.LLMModel,
			BaseURL:  cfg.LLMBaseURL,
		})
		log.Printf("✓ Reply synthesis enabled (provider: %s)", cfg.LLMProvider)
	} else {
		log.Println("○ Reply synthesis disabled (decisions only)")
	}

	return g, nil
}

// Close shuts down background consumers and external connections.
func (g *Gateway) Close() {
	if g.dispatcher != nil {
		g.dispatcher.Close()
	}
	if g.archive != nil {
		g.archive.Close()
	}
	if g.redis != nil {
		g.redis.Close()
	}
}

// MessageResponse is the wire shape returned by POST /message.
type MessageResponse struct {
	SessionID   string             `json:"session_id"`
	State       string             `json:"state"`
	Confidence  float64            `json:"confidence"`
	Category    string             `json:"category"`
	PersonaID   string             `json:"persona_id,omitempty"`
	PassThrough bool               `json:"pass_through"`
	Closed      bool               `json:"closed"`
	Reply       string             `json:"reply,omitempty"`
	ExitReason  string             `json:"exit_reason,omitempty"`
	NewIntel    map[string][]string `json:"new_intel,omitempty"`
}

// handleMessage runs the decision pipeline and, when a persona is engaged,
// synthesizes the outbound reply.
func (g *Gateway) handleMessage(ctx context.Context, in *engine.InboundMessage) (*MessageResponse, error) {
	dec, err := g.engine.Process(ctx, in)
	if err != nil {
		return nil, err
	}

	resp := &MessageResponse{
		SessionID:   dec.SessionID,
		State:       string(dec.StateAfter),
		Confidence:  dec.Confidence,
		Category:    string(dec.Category),
		PersonaID:   dec.PersonaID,
		PassThrough: dec.PassThrough,
		Closed:      dec.Closed,
		ExitReason:  dec.ExitReason,
	}
	if len(dec.NewArtifacts) > 0 {
		resp.NewIntel = make(map[string][]string)
		for _, art := range dec.NewArtifacts {
			resp.NewIntel[string(art.Type)] = append(resp.NewIntel[string(art.Type)], art.Value)
		}
	}

	if !dec.ShouldReply || dec.Closed {
		return resp, nil
	}
	if dec.ExitLine != "" {
		resp.Reply = dec.ExitLine
		return resp, nil
	}

	if g.synth != nil {
		rc := reply.Context{
			PersonaID:   dec.PersonaID,
			Category:    string(dec.Category),
			LastMessage: in.Message.Text,
			Confidence:  dec.Confidence,
		}
		if p := g.engine.Persona(dec.PersonaID); p != nil {
			rc.Descriptor = p.Descriptor
		}
		resp.Reply = g.synth.Reply(ctx, rc)
	} else {
		resp.Reply = reply.FallbackLine(dec.PersonaID)
	}
	return resp, nil
}

func main() {
	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "serve":
		addr := ""
		if len(os.Args) > 2 {
			addr = ":" + strings.TrimPrefix(os.Args[2], ":")
		}
		runHTTPServer(addr)
	case "extract":
		if len(os.Args) < 3 {
			fmt.Println("Usage: mirage extract <text>")
			os.Exit(1)
		}
		text := strings.Join(os.Args[2:], " ")
		runCLIExtract(text)
	case "version":
		fmt.Printf("Mirage v%s\n", Version)
		fmt.Println("Scam Engagement Engine - Open Source Edition")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Mirage v%s - Scam Engagement Engine\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  mirage serve [port]      Start HTTP server (default: 8090)")
	fmt.Println("  mirage extract <text>    Extract scam artifacts from text")
	fmt.Println("  mirage version           Show version")
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Println("  mirage serve 8090")
	fmt.Println("  mirage extract \"Send 500 to 9876543210@paytm now\"")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  MIRAGE_WEBHOOK_URL      Downstream webhook for intel events")
	fmt.Println("  MIRAGE_REDIS_ADDR       Redis address for the shared intel view")
	fmt.Println("  MIRAGE_POSTGRES_DSN     Postgres DSN for session report archiving")
	fmt.Println("  MIRAGE_LLM_API_KEY      API key for reply synthesis")
	fmt.Println("  MIRAGE_LLM_PROVIDER     Provider: ollama, openrouter, groq (default: ollama)")
}

// ============================================================================
// HTTP Server Mode
// ============================================================================

func runHTTPServer(addr string) {
	cfg := config.NewDefaultConfig()
	cfg.MustValidate()
	if addr != "" {
		cfg.ListenAddr = addr
	}

	gw, err := NewGateway(cfg)
	if err != nil {
		log.Fatalf("[STARTUP] FATAL: %v", err)
	}
	defer gw.Close()

	app := fiber.New(fiber.Config{
		AppName: "Mirage",
	})

	// Health check. The silence timeout is advertised here so channel
	// adapters know when to report an elapsed-silence turn.
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":                  "ok",
			"version":                 Version,
			"silence_timeout_seconds": int(cfg.SilenceTimeout.Seconds()),
		})
	})

	// Per-message decision pipeline. Body carries the scammer message plus
	// optional OCR text from screenshots and a silence flag from the channel
	// adapter.
	app.Post("/message", func(c fiber.Ctx) error {
		var req struct {
			SessionID      string `json:"session_id"`
			Text           string `json:"text"`
			Sender         string `json:"sender"`
			OCRText        string `json:"ocr_text"`
			SilenceElapsed bool   `json:"silence_elapsed"`
			Channel        string `json:"channel"`
			Language       string `json:"language"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.SessionID == "" {
			return c.Status(400).JSON(fiber.Map{"error": "session_id field is required"})
		}
		if req.Text == "" && req.OCRText == "" && !req.SilenceElapsed {
			return c.Status(400).JSON(fiber.Map{"error": "text field is required"})
		}

		in := &engine.InboundMessage{
			SessionID: req.SessionID,
			Message: engine.Message{
				Sender:    engine.Role(req.Sender),
				Text:      req.Text,
				Timestamp: time.Now(),
			},
			OCRText:        req.OCRText,
			SilenceElapsed: req.SilenceElapsed,
			Channel:        req.Channel,
			Language:       req.Language,
		}

		resp, err := gw.handleMessage(c.Context(), in)
		if err != nil {
			return c.Status(422).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(resp)
	})

	// Session state inspection
	app.Get("/sessions/:id", func(c fiber.Ctx) error {
		s, err := gw.engine.Session(c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if s == nil {
			return c.Status(404).JSON(fiber.Map{"error": "session not found"})
		}
		return c.JSON(fiber.Map{
			"session_id":       s.SessionID,
			"state":            s.State,
			"confidence":       s.Confidence,
			"category":         s.Category,
			"persona_id":       s.PersonaID,
			"turn_count":       s.TurnCount,
			"aggression_marks": s.AggressionMarks,
			"exit_reason":      s.ExitReason,
			"created_at":       s.CreatedAt,
			"last_activity_at": s.LastActivityAt,
		})
	})

	// Per-session aggregated intelligence
	app.Get("/sessions/:id/intel", func(c fiber.Ctx) error {
		view, err := gw.engine.Intel().SessionView(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"session_id": c.Params("id"), "intelligence": view})
	})

	// Cross-session aggregated intelligence
	app.Get("/intel", func(c fiber.Ctx) error {
		view, err := gw.engine.Intel().GlobalView(c.Context())
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"intelligence": view})
	})

	// Administrative close (channel shut down, operator decision)
	app.Post("/sessions/:id/close", func(c fiber.Ctx) error {
		if err := gw.engine.CloseSession(c.Context(), c.Params("id")); err != nil {
			return c.Status(404).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "closed"})
	})

	log.Printf("Mirage HTTP server starting on %s", cfg.ListenAddr)
	log.Printf("Endpoints:")
	log.Printf("  GET  /health              - Health check")
	log.Printf("  POST /message             - Per-message decision pipeline")
	log.Printf("  GET  /sessions/:id        - Session state")
	log.Printf("  GET  /sessions/:id/intel  - Per-session intelligence")
	log.Printf("  GET  /intel               - Global intelligence view")
	log.Printf("  POST /sessions/:id/close  - Administrative close")

	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.Fatal(err)
	}
}

// ============================================================================
// CLI Mode
// ============================================================================

func runCLIExtract(text string) {
	artifacts := extract.FromText(text)
	out := make(map[string][]string)
	for _, art := range artifacts {
		out[string(art.Type)] = append(out[string(art.Type)], art.Value)
	}

	output, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(output))
}
