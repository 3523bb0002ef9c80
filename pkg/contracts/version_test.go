package contracts

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, APIVersion, info.APIVersion)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Architecture)
}

func TestGetVersionString(t *testing.T) {
	s := GetVersionString()

	assert.Contains(t, s, "switchboard v"+Version)
	assert.Contains(t, s, "commit "+GitCommit)
}
