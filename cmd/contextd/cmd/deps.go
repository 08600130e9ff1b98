package cmd

import (
	"path/filepath"

	"github.com/databao-dev/contextd/internal/config"
	"github.com/databao-dev/contextd/internal/embedding"
	"github.com/databao-dev/contextd/internal/store"
)

// openStore loads the project config and opens its embedded store,
// grounded on the teacher's pattern of resolving project root then
// opening the metadata store.
func openStore(dir string) (*config.Config, *store.Store, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, nil, err
	}

	storePath := cfg.Store.Path
	if !filepath.IsAbs(storePath) {
		storePath = filepath.Join(dir, storePath)
	}

	st, err := store.Open(storePath)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Store.KeywordBackend == "bleve" {
		blevePath := storePath + ".bleve"
		if err := st.EnableBleveIndex(blevePath); err != nil {
			_ = st.Close()
			return nil, nil, err
		}
	}

	return cfg, st, nil
}

// resolveProvider picks the embedding Provider named by the project
// config: the static offline provider when the config names "static" or
// offline mode was requested, and Ollama otherwise, including when no
// provider is configured. Ollama's reachability is not checked here.
func resolveProvider(cfg *config.Config, offline bool) embedding.Provider {
	if offline || cfg.Embeddings.Provider == "static" {
		return embedding.StaticProvider{}
	}
	return embedding.NewOllamaProvider(embedding.OllamaConfig{
		Host:  cfg.Embeddings.Host,
		Model: cfg.Embeddings.Model,
		Dim:   cfg.Embeddings.Dim,
	})
}
