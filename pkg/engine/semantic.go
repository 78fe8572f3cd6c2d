package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/TryMightyAI/mirage/pkg/httputil"
)

// scamScript is a known scam opening or script line with metadata.
type scamScript struct {
	Text     string
	Category ScamCategory
	Severity float32 // 0.0-1.0: how strongly this script implies a scam
}

// SemanticDetector scores messages by embedding similarity against a corpus
// of known scam scripts. It is an optional detection layer: when the
// embedding backend is unreachable the engine degrades to heuristics only.
type SemanticDetector struct {
	db         *chromem.DB
	collection *chromem.Collection
	threshold  float32 // similarity floor for a match (default: 0.65)
	mu         sync.RWMutex
	ready      bool
}

// SemanticMatch is the result of a semantic similarity lookup.
type SemanticMatch struct {
	Score       float64      // highest similarity (0.0-1.0)
	Category    ScamCategory // category of the matched script
	MatchedText string       // the script line that matched
	IsScam      bool         // true if score >= threshold
}

// NewSemanticDetector creates a detector backed by Ollama embeddings at
// baseURL. The detector is not ready until LoadScripts succeeds.
func NewSemanticDetector(baseURL string) (*SemanticDetector, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection("scam_scripts", nil, newOllamaEmbeddingFunc("nomic-embed-text", baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return &SemanticDetector{
		db:         db,
		collection: collection,
		threshold:  0.65,
	}, nil
}

// newOllamaEmbeddingFunc builds a chromem embedding function that calls
// Ollama's /api/embeddings endpoint.
func newOllamaEmbeddingFunc(model, baseURL string) chromem.EmbeddingFunc {
	client := httputil.MediumClient()

	return func(ctx context.Context, text string) ([]float32, error) {
		reqBody := map[string]string{
			"model":  model,
			"prompt": text,
		}
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/api/embeddings", bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer httputil.DrainAndClose(resp.Body)

		if resp.StatusCode >= 400 {
			body, _ := httputil.ReadErrorBody(resp.Body)
			return nil, fmt.Errorf("ollama embedding: status %d: %s", resp.StatusCode, string(body))
		}

		var result struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}

		return result.Embedding, nil
	}
}

// knownScamScripts seeds the similarity corpus. These are canonical opener
// and pressure lines observed across the covered scam families.
var knownScamScripts = []scamScript{
	{"Your bank account has been blocked, verify your KYC immediately", CategoryBanking, 0.95},
	{"Your debit card will be deactivated today, share the OTP to keep it active", CategoryBanking, 0.95},
	{"We have detected suspicious activity on your account, confirm your details", CategoryBanking, 0.85},
	{"Your computer has a virus, install this remote access app so we can fix it", CategoryTechSupport, 0.95},
	{"This is Microsoft support, your license key has expired", CategoryTechSupport, 0.90},
	{"Congratulations, you have won the lucky draw, pay the processing fee to claim", CategoryPrizeLottery, 0.95},
	{"You have been selected for a cash prize of 25 lakh rupees", CategoryPrizeLottery, 0.90},
	{"My dear, I am stranded at the airport and need money for customs fees", CategoryRomance, 0.90},
	{"I have never felt this way, but I need your help with a small transfer", CategoryRomance, 0.85},
	{"Work from home and earn 5000 daily, small registration fee required", CategoryJobOffer, 0.95},
	{"Complete simple rating tasks and get paid instantly, join now", CategoryJobOffer, 0.85},
}

// LoadScripts embeds the scam script corpus. Requires the embedding backend
// to be reachable; on success the detector reports ready.
func (sd *SemanticDetector) LoadScripts(ctx context.Context) error {
	docs := make([]chromem.Document, len(knownScamScripts))
	for i, script := range knownScamScripts {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("script-%d", i),
			Content: script.Text,
			Metadata: map[string]string{
				"category": string(script.Category),
				"severity": fmt.Sprintf("%.2f", script.Severity),
			},
		}
	}

	if err := sd.collection.AddDocuments(ctx, docs, 2); err != nil {
		return fmt.Errorf("failed to embed scam scripts: %w", err)
	}

	sd.mu.Lock()
	sd.ready = true
	sd.mu.Unlock()
	return nil
}

// IsReady reports whether the corpus has been embedded.
func (sd *SemanticDetector) IsReady() bool {
	sd.mu.RLock()
	defer sd.mu.RUnlock()
	return sd.ready
}

// Match returns the closest scam script for text. Errors from the embedding
// backend are returned so the caller can degrade gracefully.
func (sd *SemanticDetector) Match(ctx context.Context, text string) (*SemanticMatch, error) {
	if !sd.IsReady() {
		return nil, fmt.Errorf("semantic detector not ready")
	}

	results, err := sd.collection.Query(ctx, text, 1, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic query failed: %w", err)
	}
	if len(results) == 0 {
		return &SemanticMatch{}, nil
	}

	top := results[0]
	match := &SemanticMatch{
		Score:       float64(top.Similarity),
		Category:    ScamCategory(top.Metadata["category"]),
		MatchedText: top.Content,
		IsScam:      top.Similarity >= sd.threshold,
	}
	return match, nil
}
