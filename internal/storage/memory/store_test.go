package memory_test

import (
	"testing"

	"github.com/storyshare/storyshare-api/internal/storage"
	"github.com/storyshare/storyshare-api/internal/storage/memory"
	"github.com/storyshare/storyshare-api/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return memory.New()
	})
}
