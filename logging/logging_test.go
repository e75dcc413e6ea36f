package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("debug").GetLevel())
	assert.True(t, New("debug").ReportCaller)
	assert.Equal(t, logrus.WarnLevel, New("warn").GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("nonsense").GetLevel())
	assert.False(t, New("info").ReportCaller)
}

func TestComponent(t *testing.T) {
	entry := Component(Discard(), "driver")
	assert.Equal(t, "driver", entry.Data["component"])
}
