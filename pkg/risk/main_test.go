package risk

import (
	"os"
	"testing"

	"github.com/medigo-health/platform/pkg/common/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}
