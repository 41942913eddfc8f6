// Package client talks to a contextengine-embed subprocess over HTTP,
// starting it on demand and waiting for it to become healthy. It
// implements embed.Provider so the engine can swap between the built-in
// hash embedder and a real model without touching call sites.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/agentfusion/contextengine/internal/embed"
)

// LocalProvider manages a local contextengine-embed binary, started lazily
// on the first Embed call and reused for the life of the process.
type LocalProvider struct {
	binaryPath string
	endpoint   string
	dim        int
	modelTag   string
	cmd        *exec.Cmd
	client     *http.Client
}

// NewLocalProvider creates a provider backed by the binary at binaryPath,
// listening on endpoint (host:port). dim and modelTag describe the model
// the binary is expected to serve; a mismatch between the binary's actual
// output and dim is a configuration error the caller should surface.
func NewLocalProvider(binaryPath, endpoint string, dim int, modelTag string) *LocalProvider {
	return &LocalProvider{
		binaryPath: binaryPath,
		endpoint:   endpoint,
		dim:        dim,
		modelTag:   modelTag,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *LocalProvider) ensureRunning(ctx context.Context) error {
	if p.isHealthy() {
		return nil
	}

	p.cmd = exec.CommandContext(ctx, p.binaryPath, "--listen", p.endpoint)
	p.cmd.Stdout = os.Stdout
	p.cmd.Stderr = os.Stderr

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start embedding server: %w", err)
	}

	return p.waitForHealthy(ctx, 60*time.Second)
}

func (p *LocalProvider) isHealthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("http://%s/", p.endpoint), nil)
	resp, err := p.client.Do(req)
	if err == nil && resp.StatusCode == 200 {
		resp.Body.Close()
		return true
	}
	return false
}

func (p *LocalProvider) waitForHealthy(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for embedding server")
		case <-ticker.C:
			if p.isHealthy() {
				return nil
			}
		}
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Mode  string   `json:"mode"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed converts texts into vectors via the subprocess's /embed endpoint,
// starting the subprocess first if it is not already running.
func (p *LocalProvider) Embed(ctx context.Context, texts []string, mode embed.EmbedMode) ([][]float32, error) {
	if err := p.ensureRunning(ctx); err != nil {
		return nil, &embed.EmbeddingError{ModelTag: p.modelTag, Cause: err}
	}

	jsonData, err := json.Marshal(embedRequest{Texts: texts, Mode: string(mode)})
	if err != nil {
		return nil, &embed.EmbeddingError{ModelTag: p.modelTag, Cause: err}
	}

	url := fmt.Sprintf("http://%s/embed", p.endpoint)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, &embed.EmbeddingError{ModelTag: p.modelTag, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &embed.EmbeddingError{ModelTag: p.modelTag, Cause: fmt.Errorf("embedding request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &embed.EmbeddingError{ModelTag: p.modelTag, Cause: fmt.Errorf("embedding server returned status %d", resp.StatusCode)}
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, &embed.EmbeddingError{ModelTag: p.modelTag, Cause: fmt.Errorf("failed to decode response: %w", err)}
	}

	return embedResp.Embeddings, nil
}

func (p *LocalProvider) Dimensions() int  { return p.dim }
func (p *LocalProvider) ModelTag() string { return p.modelTag }

// Close stops the embedding subprocess, if one was started.
func (p *LocalProvider) Close() error {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}
