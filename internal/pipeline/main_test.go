package pipeline

import (
	"os"
	"testing"

	"jizhuanti-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}
