package rustbert

import (
	"fmt"
	"sync"

	"github.com/soundprediction/go-rust-bert/pkg/rustbert"
)

// Config selects the models a Client runs.
type Config struct {
	// NERModelID is a Hugging Face BERT token classification model. Empty
	// selects the bundled default.
	NERModelID string
}

// Entity is one recognized span, possibly a word piece.
type Entity struct {
	Text  string
	Label string
	Score float64
}

// Client runs go-rust-bert models in process. Each model is loaded on first
// use; calls are serialized because the native models are not reentrant.
type Client struct {
	nerModelID string

	mu  sync.Mutex
	ner *rustbert.NERModel
	gen *rustbert.TextGenerationModel
}

// NewClient creates a client. No model is loaded until it is needed.
func NewClient(cfg Config) *Client {
	return &Client{nerModelID: cfg.NERModelID}
}

// nerLocked returns the NER model, loading it if needed. c.mu must be held.
func (c *Client) nerLocked() (*rustbert.NERModel, error) {
	if c.ner != nil {
		return c.ner, nil
	}
	if c.nerModelID == "" {
		m, err := rustbert.NewNERModel()
		if err != nil {
			return nil, fmt.Errorf("load default NER model: %w", err)
		}
		c.ner = m
		return m, nil
	}

	weights, config, vocab, merges, err := rustbert.DownloadArtifacts(c.nerModelID, "")
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", c.nerModelID, err)
	}
	m, err := rustbert.NewNERModelFromFiles(weights, config, vocab, merges, rustbert.ModelTypeBert)
	if err != nil {
		return nil, fmt.Errorf("load NER model %s: %w", c.nerModelID, err)
	}
	c.ner = m
	return m, nil
}

// genLocked returns the text generation model, loading it if needed. c.mu
// must be held.
func (c *Client) genLocked() (*rustbert.TextGenerationModel, error) {
	if c.gen != nil {
		return c.gen, nil
	}
	m, err := rustbert.NewTextGenerationModel()
	if err != nil {
		return nil, fmt.Errorf("load text generation model: %w", err)
	}
	c.gen = m
	return m, nil
}

// ExtractEntities tags named entities in text. Word pieces are returned as
// the model emits them.
func (c *Client) ExtractEntities(text string) ([]Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.nerLocked()
	if err != nil {
		return nil, err
	}
	spans, err := m.Predict(text)
	if err != nil {
		return nil, fmt.Errorf("tag entities: %w", err)
	}
	out := make([]Entity, 0, len(spans))
	for _, s := range spans {
		out = append(out, Entity{Text: s.Word, Label: s.Label, Score: s.Score})
	}
	return out, nil
}

// GenerateText continues prompt with the local generation model.
func (c *Client) GenerateText(prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.genLocked()
	if err != nil {
		return "", err
	}
	out, err := m.Generate(prompt, "")
	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}
	return out, nil
}

// Close releases the loaded models. The client may be used again afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ner != nil {
		c.ner.Close()
		c.ner = nil
	}
	c.gen = nil
}
