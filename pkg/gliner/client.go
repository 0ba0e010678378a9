package gliner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/soundprediction/go-gline-rs/pkg/gline"
)

var errClosed = errors.New("gliner: span model closed")

// Entity is one labeled span.
type Entity struct {
	Text  string
	Label string
	Score float32
}

// Client runs a GLiNER span model. Predictions are serialized.
type Client struct {
	mu    sync.Mutex
	model *gline.Model
}

// loadSpanModel reads model.onnx and tokenizer.json from a local directory,
// or downloads modelID from Hugging Face when no such directory exists.
func loadSpanModel(modelID string) (*gline.Model, error) {
	if fi, err := os.Stat(modelID); err == nil && fi.IsDir() {
		return gline.NewSpanModel(filepath.Join(modelID, "model.onnx"), filepath.Join(modelID, "tokenizer.json"))
	}
	return gline.NewSpanModelFromHF(modelID)
}

func NewClient(modelID string) (*Client, error) {
	if err := gline.Init(); err != nil {
		return nil, fmt.Errorf("init gline runtime: %w", err)
	}
	m, err := loadSpanModel(modelID)
	if err != nil {
		return nil, fmt.Errorf("load span model %s: %w", modelID, err)
	}
	return &Client{model: m}, nil
}

// ExtractEntities labels spans of text with labels.
func (c *Client) ExtractEntities(text string, labels []string) ([]Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model == nil {
		return nil, errClosed
	}

	batch, err := c.model.Predict([]string{text}, labels)
	if err != nil {
		return nil, fmt.Errorf("predict spans: %w", err)
	}
	out := []Entity{}
	if len(batch) > 0 {
		for _, span := range batch[0] {
			out = append(out, Entity{Text: span.Text, Label: span.Label, Score: span.Probability})
		}
	}
	return out, nil
}

// Close releases the model. Later calls to ExtractEntities fail.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model != nil {
		c.model.Close()
		c.model = nil
	}
}
