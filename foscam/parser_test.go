package foscam

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/foscambackend/models"
)

func TestParsePath_Image(t *testing.T) {
	info, err := ParsePath("/data/ami_frontyard_left/FoscamCamera_00626EFE8B21/snap/MDAlarm_20250712-213837.jpg")
	require.NoError(t, err)

	assert.Equal(t, "ami_frontyard_left", info.Location)
	assert.Equal(t, "FoscamCamera_00626EFE8B21", info.DeviceName)
	assert.Equal(t, models.DeviceTypeStandard, info.DeviceType)
	assert.Equal(t, KindSnap, info.Kind)
	assert.Equal(t, models.MediaTypeImage, info.MediaType)
	assert.Equal(t, models.MotionTypeMD, info.MotionType)
	assert.Equal(t, "ami_frontyard_left_FoscamCamera_00626EFE8B21", info.FullName())

	require.NotNil(t, info.FileTimestamp)
	expected := time.Date(2025, 7, 12, 21, 38, 37, 0, time.Local)
	assert.True(t, expected.Equal(*info.FileTimestamp))
}

func TestParsePath_Video(t *testing.T) {
	info, err := ParsePath("/data/dock_left/FoscamCamera_00626EFE89A8/record/MDalarm_20250714_003211.mkv")
	require.NoError(t, err)

	assert.Equal(t, models.MediaTypeVideo, info.MediaType)
	assert.Equal(t, KindRecord, info.Kind)
	assert.Equal(t, models.MotionTypeMD, info.MotionType)

	require.NotNil(t, info.FileTimestamp)
	expected := time.Date(2025, 7, 14, 0, 32, 11, 0, time.Local)
	assert.True(t, expected.Equal(*info.FileTimestamp))
}

func TestParsePath_HumanMotionPrefix(t *testing.T) {
	info, err := ParsePath("/data/kitchen/R2C_AABBCCDDEEFF/snap/HMDAlarm_20250101-120000.jpg")
	require.NoError(t, err)

	assert.Equal(t, models.MotionTypeHMD, info.MotionType)
	assert.Equal(t, models.DeviceTypeR2C, info.DeviceType)
}

func TestParsePath_Unrecognized(t *testing.T) {
	cases := []string{
		"/data/ami_frontyard_left/FoscamCamera_00626EFE8B21/snap/readme.txt",
		"/data/ami_frontyard_left/FoscamCamera_00626EFE8B21/other/MDAlarm_20250712-213837.jpg",
		// video grammar in a snap dir
		"/data/dock_left/FoscamCamera_00626EFE89A8/snap/MDalarm_20250714_003211.mkv",
		// image grammar in a record dir
		"/data/dock_left/FoscamCamera_00626EFE89A8/record/MDAlarm_20250714-003211.jpg",
		// lowercase prefix on an image is not in the grammar
		"/data/dock_left/FoscamCamera_00626EFE89A8/snap/mdalarm_20250714-003211.jpg",
		"short",
	}
	for _, path := range cases {
		_, err := ParsePath(path)
		assert.ErrorIs(t, err, ErrUnrecognizedPath, "path %s", path)
	}
}

func TestParsePath_UnparseableTimestamp(t *testing.T) {
	// matches the filename grammar but the digits are not a valid date;
	// the file is still accepted, without a timestamp
	info, err := ParsePath("/data/den/R2_001122334455/snap/MDAlarm_20251399-256161.jpg")
	require.NoError(t, err)
	assert.Nil(t, info.FileTimestamp)
	assert.Equal(t, models.DeviceTypeR2, info.DeviceType)
}

func TestDeviceTypeFor(t *testing.T) {
	assert.Equal(t, models.DeviceTypeStandard, DeviceTypeFor("FoscamCamera_00626EFE8B21"))
	assert.Equal(t, models.DeviceTypeR2C, DeviceTypeFor("R2C_AABB"))
	assert.Equal(t, models.DeviceTypeR2, DeviceTypeFor("R2_AABB"))
	assert.Equal(t, models.DeviceTypeUnknown, DeviceTypeFor("Ring_AABB"))
}

func TestRenderFilename_RoundTrip(t *testing.T) {
	names := map[string]string{
		"MDAlarm_20250712-213837.jpg":  KindSnap,
		"HMDAlarm_20250101-120000.jpg": KindSnap,
		"MDalarm_20250714_003211.mkv":  KindRecord,
	}
	for name, kind := range names {
		info, err := ParsePath("/data/den/FoscamCamera_X/" + kind + "/" + name)
		require.NoError(t, err, "parse %s", name)

		rendered, err := RenderFilename(info)
		require.NoError(t, err, "render %s", name)
		assert.Equal(t, name, rendered)
	}
}

func TestMatchesGrammar(t *testing.T) {
	assert.True(t, MatchesGrammar(KindSnap, "MDAlarm_20250712-213837.jpg"))
	assert.True(t, MatchesGrammar(KindRecord, "MDalarm_20250714_003211.mkv"))
	assert.False(t, MatchesGrammar(KindSnap, "MDalarm_20250714_003211.mkv"))
	assert.False(t, MatchesGrammar(KindRecord, "notes.txt"))
	assert.False(t, MatchesGrammar("other", "MDAlarm_20250712-213837.jpg"))
}
