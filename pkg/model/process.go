package model

import (
	"errors"

	"github.com/mudler/xlog"
)

func (ml *ModelLoader) StopAllExcept(s string) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.stopModels(allExcept(s))
}

// StopAll releases every cached model.
func (ml *ModelLoader) StopAll() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.stopModels(all)
}

func (ml *ModelLoader) stopModels(filter ModelFilter) error {
	var err error
	for id, m := range ml.models {
		if filter(id, m) {
			xlog.Debug("Stopping model", "model", id)
			err = errors.Join(err, ml.deleteModel(id))
		}
	}
	return err
}

// deleteModel frees the model and drops it from the cache even when freeing
// fails, so a broken backend is never handed out again.
func (ml *ModelLoader) deleteModel(s string) error {
	m := ml.models[s]
	delete(ml.models, s)
	if m == nil {
		return nil
	}
	return m.Free()
}
