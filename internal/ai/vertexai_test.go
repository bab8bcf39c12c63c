package ai

import (
	"context"
	"errors"
	"testing"
)

func TestNewVertexAIClient_Configuration(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		config      *ClientConfig
		expectError bool
		wantDim     int
		wantEmbed   string
		wantChat    string
	}{
		{
			name:        "nil config",
			config:      nil,
			expectError: true,
		},
		{
			name:      "defaults with API key",
			config:    &ClientConfig{APIKey: "test-api-key"},
			wantDim:   768,
			wantEmbed: "text-embedding-005",
			wantChat:  "gemini-2.0-flash",
		},
		{
			name:      "chat model",
			config:    &ClientConfig{APIKey: "test-api-key", Model: "gemini-1.5-pro"},
			wantDim:   768,
			wantEmbed: "text-embedding-005",
			wantChat:  "gemini-1.5-pro",
		},
		{
			name:      "embedding model with custom dimension",
			config:    &ClientConfig{APIKey: "test-api-key", Model: "text-multilingual-embedding-002", Dim: 256},
			wantDim:   256,
			wantEmbed: "text-multilingual-embedding-002",
			wantChat:  "gemini-2.0-flash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewVertexAIClient(ctx, tt.config)
			if tt.expectError {
				if !errors.Is(err, ErrNotConfigured) {
					t.Fatalf("expected ErrNotConfigured, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.Dim() != tt.wantDim {
				t.Errorf("Dim() = %d, want %d", c.Dim(), tt.wantDim)
			}
			if c.embedModel() != tt.wantEmbed {
				t.Errorf("embedModel() = %s, want %s", c.embedModel(), tt.wantEmbed)
			}
			if c.chatModel() != tt.wantChat {
				t.Errorf("chatModel() = %s, want %s", c.chatModel(), tt.wantChat)
			}
		})
	}
}

func TestVertexAIEmbed_Empty(t *testing.T) {
	c, err := NewVertexAIClient(context.Background(), &ClientConfig{APIKey: "test-api-key"})
	if err != nil {
		t.Fatalf("NewVertexAIClient: %v", err)
	}
	vecs, err := c.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("Embed(nil) = %v, %v", vecs, err)
	}
}
