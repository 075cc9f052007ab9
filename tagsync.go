// Package tagsync reconciles the equipment drawn in CAD drawings with an
// equipment database. It extracts equipment-like objects from a drawing,
// classifies them with rules and learned block mappings, assigns tags under
// a project's tag format and merges both sides in a chosen direction.
//
// Example usage:
//
//	client, err := tagsync.New(ctx,
//	    tagsync.WithSQLite("tagsync.db"),
//	    tagsync.WithMappingsFile("block-mappings.yaml"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	host, err := drawing.OpenFile("unit-100.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := client.Engine().Sync(ctx, "Unit 100", host, reconcile.Fixed(reconcile.SourceToStore))
package tagsync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agentstation/tagsync/pkg/classify"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/extract"
	"github.com/agentstation/tagsync/pkg/logging"
	"github.com/agentstation/tagsync/pkg/reconcile"
	"github.com/agentstation/tagsync/pkg/store"
	"github.com/agentstation/tagsync/pkg/store/memory"
	"github.com/agentstation/tagsync/pkg/store/postgres"
	"github.com/agentstation/tagsync/pkg/store/sqlite"
	"github.com/agentstation/tagsync/pkg/tags"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Client wires a store, an extractor, a classifier and a tag generator into
// one reconciliation engine.
type Client struct {
	store      store.Store
	extractor  *extract.Extractor
	classifier *classify.Classifier
	generator  *tags.Generator
	engine     *reconcile.Engine
	logger     *zerolog.Logger
	ownsStore  bool
}

// New creates a Client. Without a store option an in-memory store is used.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	logger := logging.OrDefault(cfg.logger)

	generator, err := tags.NewGenerator(cfg.typeCodes)
	if err != nil {
		return nil, err
	}

	st, owns, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	c := &Client{
		store:     st,
		extractor: extract.New(cfg.extract, extract.WithLogger(logger)),
		generator: generator,
		logger:    logger,
		ownsStore: owns,
	}

	classifierOpts := []classify.Option{classify.WithLogger(logger)}
	if cfg.mappingsPath != "" {
		classifierOpts = append(classifierOpts, classify.WithStore(classify.NewFileStore(cfg.mappingsPath)))
	}
	if cfg.rules != nil {
		classifierOpts = append(classifierOpts, classify.WithRules(cfg.rules))
	}
	if c.classifier, err = classify.New(classifierOpts...); err != nil {
		_ = c.Close()
		return nil, err
	}

	engineOpts := []reconcile.Option{
		reconcile.WithExtractor(c.extractor),
		reconcile.WithClassifier(c.classifier),
		reconcile.WithGenerator(c.generator),
		reconcile.WithLogger(logger),
		reconcile.WithMarkerWriteBack(cfg.markerWriteBack),
	}
	if cfg.extract.MarkerName != "" {
		engineOpts = append(engineOpts, reconcile.WithMarkerName(cfg.extract.MarkerName))
	}
	if cfg.recorder != nil {
		engineOpts = append(engineOpts, reconcile.WithRecorder(cfg.recorder))
	}
	if c.engine, err = reconcile.New(st, engineOpts...); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func openStore(ctx context.Context, cfg *config, logger *zerolog.Logger) (store.Store, bool, error) {
	if cfg.store != nil {
		return cfg.store, false, nil
	}
	switch cfg.driver {
	case "", DriverMemory:
		return memory.New(), true, nil
	case DriverSQLite:
		st, err := sqlite.Open(cfg.dsn)
		if err != nil {
			return nil, false, err
		}
		return st, true, nil
	case DriverPostgres:
		st, err := postgres.Open(ctx, cfg.dsn, postgres.WithLogger(logger))
		if err != nil {
			return nil, false, err
		}
		return st, true, nil
	default:
		return nil, false, errors.NewConfigError("store", fmt.Sprintf("unknown driver %q: must be sqlite, postgres or memory", cfg.driver), nil)
	}
}

// Store returns the system of record.
func (c *Client) Store() store.Store {
	return c.store
}

// Extractor returns the entity extractor.
func (c *Client) Extractor() *extract.Extractor {
	return c.extractor
}

// Classifier returns the type classifier.
func (c *Client) Classifier() *classify.Classifier {
	return c.classifier
}

// Generator returns the tag generator.
func (c *Client) Generator() *tags.Generator {
	return c.generator
}

// Engine returns the reconciliation engine.
func (c *Client) Engine() *reconcile.Engine {
	return c.engine
}

// Logger returns the client's logger.
func (c *Client) Logger() *zerolog.Logger {
	return c.logger
}

// Close saves pending learned mappings and closes a store the client
// opened itself.
func (c *Client) Close() error {
	var firstErr error
	if c.classifier != nil {
		if err := c.classifier.Save(); err != nil {
			c.logger.Warn().Err(err).Msg("Learned mappings not saved on close")
		}
	}
	if c.ownsStore && c.store != nil {
		if err := c.store.Close(); err != nil {
			firstErr = err
		}
	}
	return firstErr
}
