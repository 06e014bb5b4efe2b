package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/carelattice/taxonomy-backend/internal/clients/callback"
	"github.com/carelattice/taxonomy-backend/internal/clients/gcp"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
	"github.com/carelattice/taxonomy-backend/internal/platform/neo4jdb"
	"github.com/carelattice/taxonomy-backend/internal/platform/openai"
	"github.com/carelattice/taxonomy-backend/internal/realtime/bus"
)

type Clients struct {
	// Bus fans load lifecycle events out to other processes. Never nil; a
	// no-op bus stands in when REDIS_ADDR is unset.
	Bus bus.Bus

	// Bucket reads source CSV objects for file-reference loads. Nil when
	// SOURCE_GCS_BUCKET_NAME is unset.
	Bucket gcp.BucketService

	// Neo4j is the optional graph projection target. Nil when NEO4J_URI is
	// unset; graph jobs then ack as no-ops.
	Neo4j *neo4jdb.Client

	// OpenAI backs the semantic mapping strategy. Nil when OPENAI_API_KEY
	// is unset; the match cascade then stops at fuzzy.
	OpenAI openai.Client

	// Callback posts load outcomes to customer URLs.
	Callback callback.Sender
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis
	b := bus.NewNopBus()
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		rb, err := bus.NewRedisBus(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis bus: %w", err)
		}
		b = rb
	}

	// Gcs
	var bucket gcp.BucketService
	if strings.TrimSpace(os.Getenv("SOURCE_GCS_BUCKET_NAME")) != "" {
		bs, err := gcp.NewBucketService(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init bucket client: %w", err)
		}
		bucket = bs
	}

	// Neo4j
	neo, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init neo4j client: %w", err)
	}

	// Openai
	var ai openai.Client
	if strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) != "" {
		c, err := openai.NewClient(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
		ai = c
	}

	// Callback
	sender, err := callback.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init callback sender: %w", err)
	}

	return Clients{
		Bus:      b,
		Bucket:   bucket,
		Neo4j:    neo,
		OpenAI:   ai,
		Callback: sender,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(context.Background())
	}
}
