package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"halo-bridge/internal/config"
	"halo-bridge/internal/importer"
	"halo-bridge/internal/state"
)

func main() {
	var filePath string
	flag.StringVar(&filePath, "file", "", "Path to the sku,hts_code CSV export")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := log.New(os.Stdout, "[htsimport] ", log.LstdFlags|log.LUTC)

	ctx := context.Background()
	redisClient, err := state.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer redisClient.Close()

	f, err := os.Open(filePath)
	if err != nil {
		log.Fatalf("open file: %v", err)
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, state.NewRedis(redisClient, logger))

	start := time.Now()
	count, err := imp.Run(ctx)
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}

	fmt.Printf("Imported %d HTS codes in %s\n", count, time.Since(start).Truncate(time.Millisecond))
}
