// Package seed loads the starter catalog and upserts it by product name.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/models"
	"solestore-backend/pkg/logkey"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed products.yaml
var defaultCatalog []byte

type file struct {
	Products []models.Product `yaml:"products"`
}

type Upserter interface {
	// UpsertProductByName reports whether a new product was inserted.
	UpsertProductByName(ctx context.Context, p models.Product) (bool, error)
}

// Default returns the embedded starter catalog.
func Default() ([]models.Product, error) {
	return Parse(defaultCatalog)
}

func LoadFile(path string) ([]models.Product, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a catalog document. Unknown keys are rejected.
func Parse(b []byte) ([]models.Product, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var f file
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	v := validator.New()
	seen := make(map[string]struct{}, len(f.Products))
	for i, p := range f.Products {
		if err := v.Struct(p); err != nil {
			return nil, fmt.Errorf("product %d (%s): %w", i, p.Name, apperr.FromValidator(err))
		}
		if !p.HasUniqueSizes() {
			return nil, fmt.Errorf("product %d (%s): duplicate sizes", i, p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("product %d: name %q appears twice", i, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return f.Products, nil
}

type Result struct {
	Inserted int
	Updated  int
}

func Run(ctx context.Context, st Upserter, products []models.Product, log *logrus.Logger) (Result, error) {
	var res Result
	for _, p := range products {
		inserted, err := st.UpsertProductByName(ctx, p)
		if err != nil {
			return res, err
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
		log.WithFields(logrus.Fields{"name": p.Name, "inserted": inserted}).Debug("seeded product")
	}
	log.WithFields(logrus.Fields{
		logkey.Component: "seed",
		"inserted":       res.Inserted,
		"updated":        res.Updated,
	}).Info("catalog seeded")
	return res, nil
}
