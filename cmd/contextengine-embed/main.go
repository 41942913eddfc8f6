// Command contextengine-embed is the subprocess internal/embed/client
// launches and talks to over HTTP. It hosts a Python embedding server
// inside an interpreter embedded at build time, so installing the
// engine never requires a system Python.
package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/kluctl/go-embed-python/python"
)

//go:embed embedding_service.py
var embeddingScript []byte

func main() {
	listen := flag.String("listen", "127.0.0.1:8121", "host:port to serve embedding requests on")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("failed to get user home directory: %v", err)
	}
	runtimeDir := filepath.Join(homeDir, ".contextengine", "embed", "runtime")

	ep, err := python.NewEmbeddedPythonWithTmpDir(runtimeDir, true)
	if err != nil {
		log.Fatalf("failed to create embedded Python: %v", err)
	}

	tmpDir, err := os.MkdirTemp("", "contextengine-embed-*")
	if err != nil {
		log.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	scriptPath := filepath.Join(tmpDir, "embedding_service.py")
	if err := os.WriteFile(scriptPath, embeddingScript, 0644); err != nil {
		log.Fatalf("failed to write embedding script: %v", err)
	}

	cmd, err := ep.PythonCmd(scriptPath)
	if err != nil {
		log.Fatalf("failed to create python command: %v", err)
	}
	cmd.Args = append(cmd.Args, *listen)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		log.Fatalf("failed to start embedding server: %v", err)
	}

	log.Printf("starting embedding service on http://%s", *listen)

	if err := waitForReady(ctx, *listen); err != nil {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		log.Fatalf("embedding service failed to start: %v", err)
	}
	log.Println("embedding service ready")

	<-ctx.Done()
	log.Println("shutting down")
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func waitForReady(ctx context.Context, listen string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(2 * time.Minute)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return fmt.Errorf("timeout waiting for embedding service")
			}
			resp, err := client.Get(fmt.Sprintf("http://%s/", listen))
			if err == nil && resp.StatusCode == 200 {
				resp.Body.Close()
				return nil
			}
			if resp != nil {
				resp.Body.Close()
			}
		}
	}
}
