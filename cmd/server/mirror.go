package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"voxelrelay.ai/internal/persistence/r2s3"
)

// buildMirror returns nil unless VR_R2_MIRROR is set. A nil mirror ignores
// Enqueue and Close.
func buildMirror(dataDir string, logger *log.Logger) (*r2s3.Mirror, error) {
	if !envBool("VR_R2_MIRROR", false) {
		return nil, nil
	}
	cfg := r2s3.Config{
		Endpoint:        os.Getenv("VR_R2_ENDPOINT"),
		Bucket:          os.Getenv("VR_R2_BUCKET"),
		AccessKeyID:     os.Getenv("VR_R2_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("VR_R2_SECRET_ACCESS_KEY"),
		Region:          strings.TrimSpace(os.Getenv("VR_R2_REGION")),
	}
	client, err := r2s3.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("VR_R2_MIRROR=true: %w", err)
	}
	return r2s3.NewMirror(client, r2s3.MirrorConfig{
		DataDir: dataDir,
		Prefix:  os.Getenv("VR_R2_PREFIX"),
		Workers: envInt("VR_R2_UPLOAD_WORKERS", 2),
	}, logger), nil
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
