package guidance

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duet/internal/core/model"
)

func TestBuiltinCoversEveryNonSpeakingPhase(t *testing.T) {
	catalog, err := Builtin()
	require.NoError(t, err)

	for _, phaseType := range model.AllPhaseTypes() {
		tips := catalog.TipsForPhase(phaseType, model.GuidanceDetailed)
		if phaseType.IsSpeaking() {
			assert.Empty(t, tips, phaseType.String())
			continue
		}
		assert.NotEmpty(t, tips, phaseType.String())
	}
}

func TestLevelsAreCumulative(t *testing.T) {
	catalog, err := Builtin()
	require.NoError(t, err)

	minimal := catalog.TipsForPhase(model.PhasePrep, model.GuidanceMinimal)
	standard := catalog.TipsForPhase(model.PhasePrep, model.GuidanceStandard)
	detailed := catalog.TipsForPhase(model.PhasePrep, model.GuidanceDetailed)

	assert.Len(t, minimal, 1)
	assert.Len(t, standard, 3)
	assert.Len(t, detailed, 4)
	assert.Equal(t, minimal, standard[:1])
	assert.Equal(t, standard, detailed[:3])
}

func TestNoneAndSpeakingPhasesDecline(t *testing.T) {
	catalog, err := Builtin()
	require.NoError(t, err)

	assert.Empty(t, catalog.TipsForPhase(model.PhaseCooldown, model.GuidanceNone))
	assert.Empty(t, catalog.TipsForPhase(model.PhaseSlotA, model.GuidanceDetailed))

	_, ok := catalog.RandomTip(model.PhaseSlotB, model.GuidanceDetailed)
	assert.False(t, ok)
	_, ok = catalog.RandomTip(model.PhaseTransition, model.GuidanceNone)
	assert.False(t, ok)
}

func TestRandomTipIsSeedable(t *testing.T) {
	first, err := Builtin(WithRand(rand.New(rand.NewSource(7))))
	require.NoError(t, err)
	second, err := Builtin(WithRand(rand.New(rand.NewSource(7))))
	require.NoError(t, err)

	candidates := first.TipsForPhase(model.PhaseCooldown, model.GuidanceDetailed)
	for range 10 {
		tip, ok := first.RandomTip(model.PhaseCooldown, model.GuidanceDetailed)
		require.True(t, ok)
		assert.Contains(t, candidates, tip)

		again, ok := second.RandomTip(model.PhaseCooldown, model.GuidanceDetailed)
		require.True(t, ok)
		assert.Equal(t, tip, again)
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown phase":  "tips: {a: x}\nphases: {lobby: {minimal: [a]}}\n",
		"speaking phase": "tips: {a: x}\nphases: {slot_a: {minimal: [a]}}\n",
		"unknown level":  "tips: {a: x}\nphases: {prep: {chatty: [a]}}\n",
		"level none":     "tips: {a: x}\nphases: {prep: {none: [a]}}\n",
		"unknown tip":    "tips: {a: x}\nphases: {prep: {minimal: [b]}}\n",
		"not yaml":       "phases: [",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}
