package main

// Operate the format cache from a shell:
//   go run ./cmd/formatctl resolve <asset-id> webp
//   go run ./cmd/formatctl info <asset-id> png
//   go run ./cmd/formatctl list <asset-id>
//   go run ./cmd/formatctl prewarm <asset-id> png jpg webp

import (
	"log"
	"os"

	"brandkit-backend/internal/bootstrap"
	"brandkit-backend/internal/shared/config"
)

func main() {
	build := func() (*bootstrap.App, error) {
		return bootstrap.Build(config.Load())
	}
	if err := newRootCmd(build).Execute(); err != nil {
		log.Printf("formatctl: %v", err)
		os.Exit(1)
	}
}
