// Package embedder provides text embedding clients used for entity alignment,
// triplet re-ranking and the embedding relevance judge.
//
// # Supported Providers
//
//   - OpenAI (and compatible services): text-embedding-3-small, text-embedding-3-large, text-embedding-ada-002
//   - Ollama: any pulled embedding model (nomic-embed-text, mxbai-embed-large, ...)
//   - EmbedEverything: in-process local models
//
// # Usage
//
//	client := embedder.NewOpenAIEmbedder(apiKey, embedder.Config{
//	    Model:     "text-embedding-3-small",
//	    BatchSize: 100,
//	})
//	embeddings, err := client.Embed(ctx, []string{"hello world"})
//
// Any Client can be wrapped with NewCachedClient to persist vectors in a
// badger-backed cache.Store.
package embedder
