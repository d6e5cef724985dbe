package model

import (
	"context"
	"sync"

	"github.com/img-ai-studio/artgen/pkg/stablediffusion"
)

type Model struct {
	ID      string `json:"id"`
	File    string `json:"file"`
	Engine  string `json:"engine"`
	backend stablediffusion.Backend
	sync.Mutex
}

func NewModel(ID, file string, backend stablediffusion.Backend) *Model {
	return &Model{
		ID:      ID,
		File:    file,
		backend: backend,
	}
}

// GenerateImage runs one inference. Calls on the same model are serialized.
func (m *Model) GenerateImage(ctx context.Context, req *stablediffusion.GenerateImageRequest) error {
	m.Lock()
	defer m.Unlock()
	return m.backend.GenerateImage(ctx, req)
}

func (m *Model) Free() error {
	m.Lock()
	defer m.Unlock()
	if m.backend == nil {
		return nil
	}
	return m.backend.Free()
}
