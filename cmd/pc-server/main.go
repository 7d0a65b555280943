package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/lidarstack/pc-server/api"
	"github.com/lidarstack/pc-server/config"
	"github.com/lidarstack/pc-server/greyhound"
	"github.com/lidarstack/pc-server/hierarchy"
	"github.com/lidarstack/pc-server/log"
	"github.com/lidarstack/pc-server/repository"
	"github.com/lidarstack/pc-server/threedtiles"

	_ "github.com/jackc/pgx/v4/stdlib"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cliInit()

	if flagVersion {
		fmt.Printf("pc-server %s (%s, built %s)\n", version, commit, date)
		os.Exit(0)
	}

	if flagLogLevel != "" {
		log.SetLogLevel(flagLogLevel)
	}

	if err := godotenv.Load(flagEnvFile); err != nil && !os.IsNotExist(err) {
		log.Fatalf("loading %s: %s", flagEnvFile, err.Error())
	}

	if err := config.Init(); err != nil {
		log.Fatalf("configuration: %s", err.Error())
	}

	ctx := context.Background()

	store, err := repository.Connect(config.Keys.DSN(), config.Keys.PoolSize)
	if err != nil {
		log.Fatalf("connecting to store: %s", err.Error())
	}

	catalog := repository.NewCatalog(store)

	if flagInitDB {
		if err := catalog.EnsureSchema(ctx); err != nil {
			log.Fatalf("initializing metadata tables: %s", err.Error())
		}
		log.Info("metadata tables ready")
		if !flagServer {
			os.Exit(0)
		}
	}

	if err := catalog.Load(ctx); err != nil {
		log.Fatalf("loading catalog: %s", err.Error())
	}

	registry := repository.NewSchemaRegistry(store, catalog)
	engine := hierarchy.NewEngine(store, config.Keys.PoolSize)
	cache := hierarchy.NewCache(config.Keys.CacheDir, config.Keys.RootHcy)

	restApi := &api.RestApi{
		Greyhound: greyhound.NewService(catalog, registry, store, engine, cache),
		Tilesets:  threedtiles.NewBuilder(catalog, engine),
	}

	if !flagServer {
		flag.Usage()
		os.Exit(1)
	}

	if err := runServer(restApi); err != nil {
		log.Fatalf("server: %s", err.Error())
	}
}
