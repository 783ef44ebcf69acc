package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

func (mc *LLMClient) EmbedText(ctx context.Context, input string) ([]float32, error) {
	if v, ok := mc.cache.Load(input); ok {
		if emb, ok2 := v.([]float32); ok2 {
			return emb, nil
		}
	}

	if mc.cfg.EmbeddingsModel == "" {
		return nil, errors.New("embeddings model is empty; set llm.embeddings_model")
	}

	resp, err := mc.sendEmbeddings(ctx, embeddingRequestPayload{
		Model: mc.cfg.EmbeddingsModel,
		Input: input,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}
	emb := resp.Data[0].Embedding
	mc.cache.Store(input, emb)
	return emb, nil
}

func (mc *LLMClient) sendEmbeddings(ctx context.Context, payload embeddingRequestPayload) (*embeddingResponse, error) {
	var lastErr error

	for i := 0; i < mc.cfg.Retries; i++ {
		if i > 0 {
			if err := mc.wait(ctx, i); err != nil {
				return nil, err
			}
		}

		body, status, err := mc.restClient.Post(ctx, embeddingEndpoint, payload, nil)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", i+1).Int("status", status).Msg("⚠️ Embed attempt failed")
			continue
		}

		var out embeddingResponse
		if err = json.Unmarshal(body, &out); err != nil {
			lastErr = fmt.Errorf("parse embeddings json: %w", err)
			log.Warn().Err(lastErr).Msg("⚠️ Embed response unreadable")
			continue
		}
		return &out, nil
	}
	return nil, fmt.Errorf("embeddings request failed after %d retries: %w", mc.cfg.Retries, lastErr)
}
