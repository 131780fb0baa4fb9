package main

import (
	"context"
	"flag"
	"fmt"

	"solestore-backend/internal/config"
	"solestore-backend/internal/models"
	"solestore-backend/internal/seed"
	"solestore-backend/internal/store"
	"solestore-backend/pkg/logkey"

	"github.com/sirupsen/logrus"
)

func main() {
	file := flag.String("file", "", "catalog YAML to load instead of the built-in one")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if err := run(*file, log); err != nil {
		log.WithField(logkey.ERROR, err.Error()).Fatal("seeding failed")
	}
}

func run(file string, log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.StoreMongo {
		return fmt.Errorf("seeding needs STORE_DRIVER=%s, got %q", config.StoreMongo, cfg.StoreDriver)
	}

	var products []models.Product
	if file != "" {
		products, err = seed.LoadFile(file)
	} else {
		products, err = seed.Default()
	}
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := store.Connect(ctx, store.Options{
		URI:            cfg.MongoURI(),
		Database:       cfg.MongoDatabase,
		ConnectTimeout: cfg.MongoConnectTimeout,
	}, log)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	if err := st.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	_, err = seed.Run(ctx, st, products, log)
	return err
}
