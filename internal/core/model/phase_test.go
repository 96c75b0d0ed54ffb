package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPhaseTypeAssociationsCoverEveryType(t *testing.T) {
	for _, phaseType := range AllPhaseTypes() {
		t.Run(phaseType.String(), func(t *testing.T) {
			assert.True(t, phaseType.Valid())
			assert.NotPanics(t, func() {
				limits := phaseType.Limits()
				assert.Less(t, limits.Min, limits.Max)
				assert.NotEmpty(t, phaseType.Label())
				assert.Regexp(t, `^#[0-9A-F]{6}$`, phaseType.Color())
				_ = phaseType.Speaker()
			})
		})
	}
}

func TestPhaseTypeUnknownPanics(t *testing.T) {
	unknown := PhaseType(99)
	assert.False(t, unknown.Valid())
	assert.Panics(t, func() { unknown.Limits() })
	assert.Panics(t, func() { unknown.Speaker() })
	assert.Panics(t, func() { unknown.Color() })
	assert.Equal(t, "phase_type(99)", unknown.String())
}

func TestPhaseTypeLimits(t *testing.T) {
	testCases := []struct {
		phaseType PhaseType
		expected  DurationRange
	}{
		{PhasePrep, DurationRange{Min: 30, Max: 600}},
		{PhaseSlotA, DurationRange{Min: 300, Max: 1800}},
		{PhaseSlotB, DurationRange{Min: 300, Max: 1800}},
		{PhaseTransition, DurationRange{Min: 30, Max: 300}},
		{PhaseClosingA, DurationRange{Min: 60, Max: 600}},
		{PhaseClosingB, DurationRange{Min: 60, Max: 600}},
		{PhaseCooldown, DurationRange{Min: 300, Max: 1800}},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expected, testCase.phaseType.Limits(), testCase.phaseType.String())
	}
}

func TestPhaseTypeSpeaker(t *testing.T) {
	assert.Equal(t, SpeakerA, PhaseSlotA.Speaker())
	assert.Equal(t, SpeakerA, PhaseClosingA.Speaker())
	assert.Equal(t, SpeakerB, PhaseSlotB.Speaker())
	assert.Equal(t, SpeakerB, PhaseClosingB.Speaker())
	assert.Equal(t, SpeakerNone, PhaseTransition.Speaker())
	assert.Equal(t, "A", SpeakerA.String())
	assert.Equal(t, "", SpeakerNone.String())
}

func TestParsePhaseType(t *testing.T) {
	for _, phaseType := range AllPhaseTypes() {
		parsed, err := ParsePhaseType(phaseType.String())
		require.NoError(t, err)
		assert.Equal(t, phaseType, parsed)
	}

	parsed, err := ParsePhaseType("  Slot_A ")
	require.NoError(t, err)
	assert.Equal(t, PhaseSlotA, parsed)

	_, err = ParsePhaseType("intermission")
	assert.Error(t, err)
}

func TestPhaseDescriptorYAML(t *testing.T) {
	var phase PhaseDescriptor
	err := yaml.Unmarshal([]byte("id: a1\ntype: slot_a\nduration_seconds: 420\n"), &phase)
	require.NoError(t, err)
	assert.Equal(t, PhaseDescriptor{ID: "a1", Type: PhaseSlotA, DurationSeconds: 420}, phase)

	err = yaml.Unmarshal([]byte("id: x\ntype: encore\nduration_seconds: 60\n"), &phase)
	assert.Error(t, err)

	out, err := yaml.Marshal(PhaseDescriptor{ID: "c", Type: PhaseCooldown, DurationSeconds: 300})
	require.NoError(t, err)
	assert.Contains(t, string(out), "type: cooldown")
}
